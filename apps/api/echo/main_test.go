package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/tymastrangelo/groupgrade-sub000/apps/api/echo"
	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	emailsvc "github.com/tymastrangelo/groupgrade-sub000/services/email"
	metricsvc "github.com/tymastrangelo/groupgrade-sub000/services/metrics"
	inmemdb "github.com/tymastrangelo/groupgrade-sub000/storage/database/inmem"
	testutil "github.com/tymastrangelo/groupgrade-sub000/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	conf      *core.Config
	server    *echoapi.Server
	usrRepo   user.Repository
	classRepo class.Repository
	members   *class.MemberCache
	mailSvc   *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(core.NewNopLogger(), true)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	env := &testEnv{
		conf:      conf,
		usrRepo:   inmemdb.NewUserRepository(db),
		classRepo: inmemdb.NewClassRepository(db),
		mailSvc:   emailsvc.NewConsoleServiceMock(conf),
	}

	// set up services
	usrSvc := user.NewServiceMock(env.usrRepo, env.mailSvc, conf)
	registry := prometheus.NewRegistry()
	metrics, err := metricsvc.NewCacheMetrics(registry)
	require.NoError(t, err)
	env.members, err = class.NewMemberCache(usrSvc, synccache.WithMetrics[grouping.Member](metrics.For("members")))
	require.NoError(t, err)
	classSvc := class.NewService(env.classRepo, env.members, env.mailSvc, conf, core.NewNopLogger())
	validate, translator := testutil.NewValidator()

	// set up server
	env.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         core.NewNopLogger(),
		UserSvc:        usrSvc,
		ClassSvc:       classSvc,
		Validate:       validate,
		Translator:     translator,
		Gatherer:       registry,
		DisableReqLogs: true,
	})
	return env
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (env *testEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := env.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err) {
		assert.True(t, ok, "data = %s; wantData %s", rec.Body.String(), string(tt.wantData))
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_home(t *testing.T) {
	env := setup(t)
	rec := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to GroupGrade API!", rec.Body.String())
}

func TestServer_metrics(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateUser(t, env.usrRepo, "Prof", "professor", "prof@test.edu", "", []string{user.RoleProfessor}, true)
	student := testutil.CreateStudent(t, env.usrRepo, "Ada", "ada.lovelace", testutil.Skills(10))
	cls := testutil.CreateClass(t, env.classRepo, prof, "Algorithms", "ABCD2345")
	testutil.Enroll(t, env.classRepo, cls, student)

	rec := env.do(http.MethodGet, "/v1/classes/"+cls.ID+"/roster", getToken(t, env.conf, prof))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `groupgrade_synccache_events_total{cache="members",event="miss",kind="member"} 1`)
}
