package class_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	emailsvc "github.com/tymastrangelo/groupgrade-sub000/services/email"
	inmemdb "github.com/tymastrangelo/groupgrade-sub000/storage/database/inmem"
	testutil "github.com/tymastrangelo/groupgrade-sub000/tests"
)

// flakyUserService fails GetByID for the users marked as failing.
type flakyUserService struct {
	user.Service

	mu      sync.Mutex
	failing map[string]bool
}

func (svc *flakyUserService) fail(id string) {
	svc.mu.Lock()
	svc.failing[id] = true
	svc.mu.Unlock()
}

func (svc *flakyUserService) GetByID(ctx context.Context, id string) (user.User, error) {
	svc.mu.Lock()
	failing := svc.failing[id]
	svc.mu.Unlock()
	if failing {
		return user.User{}, errors.New("connection refused")
	}
	return svc.Service.GetByID(ctx, id)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc       class.Service
	usrRepo   user.Repository
	classRepo class.Repository
	usrSvc    *flakyUserService
	members   *class.MemberCache
	mailSvc   *emailsvc.ConsoleServiceMock
	clock     *fakeClock
	prof      user.User
	admin     user.User
	students  []user.User
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(core.NewNopLogger(), true)

	db := testutil.PrepareDB(t)
	env := &testEnv{
		usrRepo:   inmemdb.NewUserRepository(db),
		classRepo: inmemdb.NewClassRepository(db),
		mailSvc:   emailsvc.NewConsoleServiceMock(conf),
		clock:     &fakeClock{now: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)},
	}
	env.usrSvc = &flakyUserService{
		Service: user.NewServiceMock(env.usrRepo, env.mailSvc, conf),
		failing: make(map[string]bool),
	}
	var err error
	env.members, err = class.NewMemberCache(env.usrSvc, synccache.WithClock[grouping.Member](env.clock.Now))
	require.NoError(t, err)
	env.svc = class.NewService(env.classRepo, env.members, env.mailSvc, conf, core.NewNopLogger())

	env.prof = testutil.CreateUser(t, env.usrRepo, "Ada Prof", "ada", "ada@test.edu", "", []string{user.RoleProfessor}, true)
	env.admin = testutil.CreateUser(t, env.usrRepo, "Root", "root", "root@test.edu", "", []string{user.RoleAdmin}, true)
	for i, uname := range []string{"s1", "s2", "s3", "s4", "s5"} {
		env.students = append(env.students, testutil.CreateStudent(t, env.usrRepo, "Student "+uname, uname, testutil.Skills(20-2*i)))
	}
	return env
}

func memberIDs(members []grouping.Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

func userIDs(users ...user.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestService_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cls, err := env.svc.Create(ctx, env.prof, class.NewClass{Name: "Databases"})
	require.NoError(t, err)
	assert.NotEmpty(t, cls.ID)
	assert.Len(t, cls.Code, class.CodeLength)
	assert.Equal(t, env.prof.ID, cls.ProfessorID)

	got, err := env.classRepo.GetClassByCode(ctx, cls.Code)
	require.NoError(t, err)
	assert.Equal(t, cls.ID, got.ID)

	_, err = env.svc.Create(ctx, env.students[0], class.NewClass{Name: "Hacking"})
	assert.Equal(t, class.ErrForbidden, err)
}

func TestService_Join(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, env.classRepo, env.prof, "Databases", "ABCD2345")
	s1 := env.students[0]

	got, err := env.svc.Join(ctx, s1, " abcd-2345")
	require.NoError(t, err)
	assert.Equal(t, cls.ID, got.ID)

	m, ok := env.members.Peek(class.MemberKey(s1.ID))
	require.True(t, ok)
	assert.Equal(t, s1.Member(), m)

	_, err = env.svc.Join(ctx, s1, "ABCD2345")
	assert.Equal(t, class.ErrAlreadyMember, errors.Cause(err))

	_, err = env.svc.Join(ctx, env.students[1], "ZZZZ9999")
	assert.Equal(t, class.ErrInvalidCode, err)

	_, err = env.svc.Join(ctx, env.prof, "ABCD2345")
	assert.Equal(t, class.ErrForbidden, err)
}

func TestService_Get(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, env.classRepo, env.prof, "Databases", "ABCD2345")
	testutil.Enroll(t, env.classRepo, cls, env.students[0])

	tests := []struct {
		name    string
		usr     user.User
		wantErr error
	}{
		{"owner", env.prof, nil},
		{"admin", env.admin, nil},
		{"member", env.students[0], nil},
		{"outsider", env.students[1], class.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.svc.Get(ctx, tt.usr, cls.ID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cls, got)
		})
	}

	_, err := env.svc.Get(ctx, env.prof, "unknown")
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))
}

func TestService_ListForUser(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, env.classRepo, env.prof, "Databases", "ABCD2345")
	testutil.Enroll(t, env.classRepo, cls, env.students[0])

	classes, err := env.svc.ListForUser(ctx, env.students[0])
	require.NoError(t, err)
	assert.Equal(t, []class.Class{cls}, classes)

	classes, err = env.svc.ListForUser(ctx, env.students[1])
	require.NoError(t, err)
	assert.Empty(t, classes)
}

func TestService_Roster(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, env.classRepo, env.prof, "Databases", "ABCD2345")
	s := env.students
	ghost := user.User{ID: "ghost"}
	testutil.Enroll(t, env.classRepo, cls, s[2], s[0], ghost, s[1])

	roster, err := env.svc.Roster(ctx, cls)
	require.NoError(t, err)
	assert.Equal(t, userIDs(s[2], s[0], s[1]), memberIDs(roster))
	assert.Equal(t, s[0].Member(), roster[1])

	t.Run("stale profile", func(t *testing.T) {
		env.usrSvc.fail(s[0].ID)
		env.clock.Advance(time.Hour)

		roster, err := env.svc.Roster(ctx, cls)
		require.NoError(t, err)
		assert.Equal(t, userIDs(s[2], s[0], s[1]), memberIDs(roster))
		assert.Equal(t, s[0].Member(), roster[1])
	})

	t.Run("unknown profile", func(t *testing.T) {
		env.usrSvc.fail(s[3].ID)
		testutil.Enroll(t, env.classRepo, cls, s[3])

		_, err := env.svc.Roster(ctx, cls)
		assert.True(t, errors.Is(err, synccache.ErrRetrievalFailed))
	})
}

func TestService_MemberChanged(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, env.classRepo, env.prof, "Databases", "ABCD2345")
	s1 := env.students[0]
	testutil.Enroll(t, env.classRepo, cls, s1)

	_, err := env.svc.Roster(ctx, cls)
	require.NoError(t, err)

	s1.Skills = grouping.SkillProfile{Research: 1}
	s1, err = env.usrRepo.UpdateUser(ctx, s1)
	require.NoError(t, err)

	// the cached profile is still fresh
	roster, err := env.svc.Roster(ctx, cls)
	require.NoError(t, err)
	assert.NotEqual(t, s1.Skills, roster[0].Profile)

	env.svc.MemberChanged(s1)
	roster, err = env.svc.Roster(ctx, cls)
	require.NoError(t, err)
	assert.Equal(t, s1.Skills, roster[0].Profile)
}

func TestService_FormGroups(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, env.classRepo, env.prof, "Databases", "ABCD2345")
	s := env.students

	_, err := env.svc.Groups(ctx, cls)
	assert.Equal(t, class.ErrNoGroups, errors.Cause(err))

	_, err = env.svc.FormGroups(ctx, env.prof, cls, class.FormGroups{Mode: grouping.ModeAutomatic})
	assert.Equal(t, grouping.ErrEmptyRoster, err)

	testutil.Enroll(t, env.classRepo, cls, s...)

	_, err = env.svc.FormGroups(ctx, env.students[0], cls, class.FormGroups{Mode: grouping.ModeAutomatic})
	assert.Equal(t, class.ErrForbidden, err)

	_, err = env.svc.FormGroups(ctx, env.prof, cls, class.FormGroups{Mode: "random"})
	assert.Equal(t, grouping.ErrInvalidConfiguration, err)

	t.Run("automatic with default size", func(t *testing.T) {
		env.mailSvc.Reset()
		groups, err := env.svc.FormGroups(ctx, env.prof, cls, class.FormGroups{Mode: grouping.ModeAutomatic})
		require.NoError(t, err)
		// 5 students, groups of 4 at most
		require.Len(t, groups, 2)
		assert.Equal(t, userIDs(s[0], s[2], s[4]), groups[0].MemberIDs())
		assert.Equal(t, userIDs(s[1], s[3]), groups[1].MemberIDs())

		sent := env.mailSvc.Sent()
		require.Len(t, sent, 5)
		assert.Equal(t, "group_assignment", sent[0].TemplateName)

		stored, err := env.svc.Groups(ctx, cls)
		require.NoError(t, err)
		assert.Equal(t, groups, stored)
	})

	t.Run("manual replaces previous groups", func(t *testing.T) {
		manual := class.FormGroups{
			Mode: grouping.ModeManual,
			Groups: []grouping.ManualGroup{
				{Name: "Team", MemberIDs: []string{s[1].ID, "nobody", s[0].ID}},
				{Name: "Empty", MemberIDs: []string{"nobody"}},
			},
		}
		groups, err := env.svc.FormGroups(ctx, env.admin, cls, manual)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "Team", groups[0].Name)
		assert.Equal(t, userIDs(s[1], s[0]), groups[0].MemberIDs())

		stored, err := env.svc.Groups(ctx, cls)
		require.NoError(t, err)
		assert.Equal(t, groups, stored)
	})

	t.Run("no valid manual group", func(t *testing.T) {
		_, err := env.svc.FormGroups(ctx, env.prof, cls, class.FormGroups{
			Mode:   grouping.ModeManual,
			Groups: []grouping.ManualGroup{{Name: "Ghosts", MemberIDs: []string{"nobody"}}},
		})
		assert.Equal(t, grouping.ErrNoValidGroups, err)
	})
}
