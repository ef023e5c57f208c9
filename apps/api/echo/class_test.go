package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/tymastrangelo/groupgrade-sub000/apps/api/echo"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	testutil "github.com/tymastrangelo/groupgrade-sub000/tests"
)

func Test_classApi_create(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	student := testutil.CreateStudent(t, env.usrRepo, "Ada", "ada.lovelace", testutil.Skills(10))

	env.run(t, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/v1/classes", body: []byte(`{"name":"Algorithms"}`),
			wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken),
		},
		{
			name: "professor required", method: http.MethodPost, path: "/v1/classes", body: []byte(`{"name":"Algorithms"}`),
			token: getToken(t, env.conf, student), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "blank name", method: http.MethodPost, path: "/v1/classes", body: []byte(`{"name":"   "}`),
			token: getToken(t, env.conf, prof), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"name is a required field"}`),
		},
	})

	rec := env.do(http.MethodPost, "/v1/classes", getToken(t, env.conf, prof), []byte(`{"name":" Algorithms ","description":"CS 201"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cls := decode[class.Class](t, rec)
	assert.Equal(t, "Algorithms", cls.Name)
	assert.Equal(t, prof.ID, cls.ProfessorID)
	assert.Len(t, cls.Code, class.CodeLength)
	assert.Equal(t, class.NormalizeCode(cls.Code), cls.Code)
}

func Test_classApi_join(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	student := testutil.CreateStudent(t, env.usrRepo, "Ada", "ada.lovelace", testutil.Skills(10))
	cls := testutil.CreateClass(t, env.classRepo, prof, "Algorithms", "ABCD2345")
	token := getToken(t, env.conf, student)

	rec := env.do(http.MethodPost, "/v1/classes/join", token, []byte(`{"code":"abcd-2345"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, cls.ID, decode[class.Class](t, rec).ID)

	env.run(t, []httpTest{
		{
			name: "already a member", method: http.MethodPost, path: "/v1/classes/join", body: []byte(`{"code":"ABCD2345"}`),
			token: token, wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: class.ErrAlreadyMember.Error()}),
		},
		{
			name: "unknown code", method: http.MethodPost, path: "/v1/classes/join", body: []byte(`{"code":"ZZZZ2345"}`),
			token: token, wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: class.ErrInvalidCode.Error()}),
		},
		{
			name: "malformed code", method: http.MethodPost, path: "/v1/classes/join", body: []byte(`{"code":"IO01"}`),
			token: token, wantCode: http.StatusBadRequest, wantData: []byte(`{"code":"invalid class code"}`),
		},
		{
			name: "students only", method: http.MethodPost, path: "/v1/classes/join", body: []byte(`{"code":"ABCD2345"}`),
			token: getToken(t, env.conf, prof), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: class.ErrForbidden.Error()}),
		},
	})
}

func Test_classApi_retrieve(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other.prof", "other@test.edu", "", []string{user.RoleProfessor}, true)
	member := testutil.CreateStudent(t, env.usrRepo, "Ada", "ada.lovelace", testutil.Skills(10))
	outsider := testutil.CreateStudent(t, env.usrRepo, "Bob", "bob.builder", testutil.Skills(10))
	cls := testutil.CreateClass(t, env.classRepo, prof, "Algorithms", "ABCD2345")
	testutil.Enroll(t, env.classRepo, cls, member)

	path := "/v1/classes/" + cls.ID
	notFound := marshallObj(t, httpErr{Error: "not found"})
	env.run(t, []httpTest{
		{name: "owner", path: path, token: getToken(t, env.conf, prof), wantCode: http.StatusOK, wantData: marshallObj(t, cls)},
		{name: "member", path: path, token: getToken(t, env.conf, member), wantCode: http.StatusOK, wantData: marshallObj(t, cls)},
		{name: "outsider", path: path, token: getToken(t, env.conf, outsider), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "other professor", path: path, token: getToken(t, env.conf, other), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "unknown", path: "/v1/classes/nope", token: getToken(t, env.conf, prof), wantCode: http.StatusNotFound, wantData: notFound},
	})
}

func Test_classApi_list(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	student := testutil.CreateStudent(t, env.usrRepo, "Ada", "ada.lovelace", testutil.Skills(10))
	algo := testutil.CreateClass(t, env.classRepo, prof, "algorithms", "ABCD2345")
	compilers := testutil.CreateClass(t, env.classRepo, prof, "Compilers", "ABCD2346")
	testutil.Enroll(t, env.classRepo, compilers, student)

	token := getToken(t, env.conf, prof)
	env.run(t, []httpTest{
		{
			name: "by name", path: "/v1/classes?ordering=name", token: token, wantCode: http.StatusOK,
			wantData: marshallObj(t, echoapi.ClassesResponse{Classes: []class.Class{algo, compilers}}),
		},
		{
			name: "by -name", path: "/v1/classes?ordering=-name,unknown", token: token, wantCode: http.StatusOK,
			wantData: marshallObj(t, echoapi.ClassesResponse{Classes: []class.Class{compilers, algo}}),
		},
		{
			name: "student", path: "/v1/classes", token: getToken(t, env.conf, student), wantCode: http.StatusOK,
			wantData: marshallObj(t, echoapi.ClassesResponse{Classes: []class.Class{compilers}}),
		},
	})
}

func Test_classApi_roster(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	ada := testutil.CreateStudent(t, env.usrRepo, "Ada", "ada.lovelace", testutil.Skills(12))
	bob := testutil.CreateStudent(t, env.usrRepo, "Bob", "bob.builder", testutil.Skills(4))
	cls := testutil.CreateClass(t, env.classRepo, prof, "Algorithms", "ABCD2345")
	testutil.Enroll(t, env.classRepo, cls, bob, ada)

	path := "/v1/classes/" + cls.ID + "/roster"
	rec := env.do(http.MethodGet, path, getToken(t, env.conf, ada))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token := getToken(t, env.conf, prof)
	rec = env.do(http.MethodGet, path, token)
	require.Equal(t, http.StatusOK, rec.Code)
	want := echoapi.RosterResponse{Roster: []grouping.Member{bob.Member(), ada.Member()}}
	assert.JSONEq(t, string(marshallObj(t, want)), rec.Body.String())

	etag := rec.Header().Get("ETag")
	req, rec := newAuthRequest(http.MethodGet, path, token)
	req.Header.Set("If-None-Match", `"other", `+etag)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func Test_classApi_groups(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	students := []user.User{
		testutil.CreateStudent(t, env.usrRepo, "S1", "student1", testutil.Skills(20)),
		testutil.CreateStudent(t, env.usrRepo, "S2", "student2", testutil.Skills(16)),
		testutil.CreateStudent(t, env.usrRepo, "S3", "student3", testutil.Skills(12)),
		testutil.CreateStudent(t, env.usrRepo, "S4", "student4", testutil.Skills(8)),
		testutil.CreateStudent(t, env.usrRepo, "S5", "student5", testutil.Skills(4)),
	}
	cls := testutil.CreateClass(t, env.classRepo, prof, "Algorithms", "ABCD2345")
	empty := testutil.CreateClass(t, env.classRepo, prof, "Empty", "ABCD2346")
	testutil.Enroll(t, env.classRepo, cls, students[4], students[2], students[0], students[3], students[1])

	profToken := getToken(t, env.conf, prof)
	studentToken := getToken(t, env.conf, students[0])
	path := "/v1/classes/" + cls.ID + "/groups"

	env.run(t, []httpTest{
		{
			name: "not formed yet", path: path, token: studentToken, wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: class.ErrNoGroups.Error()}),
		},
		{
			name: "owner required", method: http.MethodPost, path: path, token: studentToken,
			body: []byte(`{"mode":"automatic"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid mode", method: http.MethodPost, path: path, token: profToken,
			body: []byte(`{"mode":"random"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"mode":"mode must be one of manual or automatic"}`),
		},
		{
			name: "empty roster", method: http.MethodPost, path: "/v1/classes/" + empty.ID + "/groups", token: profToken,
			body: []byte(`{"mode":"automatic"}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: grouping.ErrEmptyRoster.Error()}),
		},
		{
			name: "no valid manual group", method: http.MethodPost, path: path, token: profToken,
			body:     []byte(`{"mode":"manual","groups":[{"name":"Ghosts","member_ids":["nobody"]}]}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: grouping.ErrNoValidGroups.Error()}),
		},
	})
	assert.Empty(t, env.mailSvc.Sent())

	// 5 students by groups of 2: 3 groups dealt by descending skills
	rec := env.do(http.MethodPost, path, profToken, []byte(`{"mode":"automatic","group_size":2}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	groups := decode[echoapi.GroupsResponse](t, rec).Groups
	require.Len(t, groups, 3)
	names := func(r grouping.Result) []string {
		n := make([]string, 0, len(r.Members))
		for _, m := range r.Members {
			n = append(n, m.DisplayName)
		}
		return n
	}
	assert.Equal(t, "Group A", groups[0].Name)
	assert.Equal(t, []string{"S1", "S4"}, names(groups[0]))
	assert.Equal(t, []string{"S2", "S5"}, names(groups[1]))
	assert.Equal(t, []string{"S3"}, names(groups[2]))
	assert.NotContains(t, rec.Body.String(), "research")

	sent := env.mailSvc.Sent()
	assert.Len(t, sent, 5)
	for _, msg := range sent {
		assert.Equal(t, "group_assignment", msg.TemplateName)
	}

	rec = env.do(http.MethodGet, path, studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, groups, decode[echoapi.GroupsResponse](t, rec).Groups)

	// forming again replaces the groups
	rec = env.do(http.MethodPost, path, profToken, marshallObj(t, class.FormGroups{
		Mode:   grouping.ModeManual,
		Groups: []grouping.ManualGroup{{Name: "Team", MemberIDs: []string{students[1].ID, "nobody", students[0].ID}}},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, path, studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	groups = decode[echoapi.GroupsResponse](t, rec).Groups
	require.Len(t, groups, 1)
	assert.Equal(t, "Team", groups[0].Name)
	assert.Equal(t, []string{"S2", "S1"}, names(groups[0]))

	// out of range sizes are clamped: -3 forms groups of 2
	rec = env.do(http.MethodPost, path, profToken, []byte(`{"mode":"automatic","group_size":-3}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	groups = decode[echoapi.GroupsResponse](t, rec).Groups
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"S1", "S4"}, names(groups[0]))
	assert.Equal(t, []string{"S3"}, names(groups[2]))
}
