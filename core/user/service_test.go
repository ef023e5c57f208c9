package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	emailsvc "github.com/tymastrangelo/groupgrade-sub000/services/email"
	inmemdb "github.com/tymastrangelo/groupgrade-sub000/storage/database/inmem"
	testutil "github.com/tymastrangelo/groupgrade-sub000/tests"
)

const pwd = "Sup3r$ecret"

func setup(t *testing.T) (user.Service, user.Repository, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(core.NewNopLogger(), true)
	repo := inmemdb.NewUserRepository(testutil.PrepareDB(t))
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	return user.NewServiceMock(repo, mailSvc, conf), repo, mailSvc
}

func TestService_Create(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{Name: "Grace", Username: "grace_h", Email: "grace@test.edu", Password: pwd})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.Active())
	assert.True(t, usr.IsStudent())
	assert.NoError(t, usr.CheckPassword(pwd))

	got, err := svc.GetByUsernameOrEmail(ctx, " GRACE@test.edu ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	prof, err := svc.Create(ctx, user.NewUser{Name: "Ada", Password: pwd, Roles: []string{user.RoleProfessor}})
	require.NoError(t, err)
	assert.True(t, prof.IsProfessor())
	assert.False(t, prof.IsStudent())
}

func TestService_CheckUniqueness(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Grace", "grace_h", "grace@test.edu", pwd, []string{user.RoleStudent}, true)

	tests := []struct {
		name      string
		uname     string
		email     string
		excl      []user.User
		wantField string
	}{
		{name: "username taken", uname: "grace_h", email: "other@test.edu", wantField: "username"},
		{name: "email taken", uname: "other_user", email: "grace@test.edu", wantField: "email"},
		{name: "unique", uname: "other_user", email: "other@test.edu"},
		{name: "excluded user", uname: "grace_h", email: "grace@test.edu", excl: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excl...)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_UpdateSkills(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	student := testutil.CreateUser(t, repo, "Grace", "grace_h", "grace@test.edu", "", []string{user.RoleStudent}, true)
	prof := testutil.CreateUser(t, repo, "Ada", "ada_lovelace", "ada@test.edu", "", []string{user.RoleProfessor}, true)
	skills := grouping.SkillProfile{Research: 3, Writing: 4, Design: 1, Technical: 5}

	updated, err := svc.UpdateSkills(ctx, student, skills)
	require.NoError(t, err)
	assert.Equal(t, skills, updated.Skills)
	assert.True(t, updated.UpdatedAt.After(student.UpdatedAt) || updated.UpdatedAt.Equal(student.UpdatedAt))

	got, err := svc.GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, skills, got.Skills)
	assert.Equal(t, 13, got.Member().Profile.Aggregate())

	_, err = svc.UpdateSkills(ctx, prof, skills)
	assert.Equal(t, user.ErrNotAStudent, err)
}

func TestService_PasswordReset(t *testing.T) {
	svc, repo, mailSvc := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Grace", "grace_h", "grace@test.edu", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, repo, "Gone", "gone_user", "gone@test.edu", pwd, []string{user.RoleStudent}, false)

	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, "nobody@test.edu")))
	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "gone@test.edu"))
	assert.Empty(t, mailSvc.Sent())

	require.NoError(t, svc.RequestPasswordReset(ctx, "grace@test.edu"))
	sent := mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "password_reset", sent[0].TemplateName)
	data := sent[0].TemplateData.(map[string]interface{})
	uid, token := data["UID"].(string), data["Token"].(string)

	var vErr *core.ValidationError
	err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: "bad-token-sig", Password: "N3w&Improved!"})
	assert.True(t, errors.As(err, &vErr))
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: "%%%", Token: token, Password: "N3w&Improved!"})
	assert.True(t, errors.As(err, &vErr))

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "N3w&Improved!"}))
	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("N3w&Improved!"))
}

func TestService_SetLastLogin(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Grace", "grace_h", "grace@test.edu", pwd, []string{user.RoleStudent}, true)
	require.True(t, usr.LastLogin.IsZero())

	usr, err := svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}
