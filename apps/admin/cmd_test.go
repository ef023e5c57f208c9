package main

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	inmemdb "github.com/tymastrangelo/groupgrade-sub000/storage/database/inmem"
	testutil "github.com/tymastrangelo/groupgrade-sub000/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	usrRepo = inmemdb.NewUserRepository(testutil.PrepareDB(t))

	// start CLI
	return &commandLine{
		usrRepo: usrRepo,
		logger:  core.NewNopLogger(),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, cli *commandLine) error {
	t.Helper()
	readPasswordFunc = func(int) ([]byte, error) { return []byte(tt.pwd), nil }

	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		assert.EqualError(t, err, tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
	return err
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var ran []string
	gooseRunFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = tt.check(t, cli)
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down-to", "status"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, usrRepo, "Ada", "ada.lovelace", "ada@test.edu", "old", []string{user.RoleStudent}, false)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "grace"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, pwd: "pwd", wantErr: errHelp},
		{name: "professor", args: []string{"adduser", "-username", "Grace", "-email", "grace@test.edu", "-name", "Grace Hopper", "-professor"}, pwd: "pwd"},
		{name: "admin", args: []string{"adduser", "-email", "root@test.edu", "-admin"}, pwd: "pwd"},
		{name: "existing user", args: []string{"adduser", "-email", "ADA@test.edu"}, pwd: "new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = tt.check(t, cli)
		})
	}

	grace, err := usrRepo.GetUserByUsernameOrEmail(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", grace.Name)
	assert.True(t, grace.IsProfessor())
	assert.False(t, grace.IsAdmin())
	assert.NoError(t, grace.CheckPassword("pwd"))

	root, err := usrRepo.GetUserByUsernameOrEmail(ctx, "root@test.edu")
	require.NoError(t, err)
	assert.ElementsMatch(t, user.AllRoles, root.Roles)

	ada, err := usrRepo.GetUserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, ada.Active())
	assert.Equal(t, "Ada", ada.Name)
	assert.Equal(t, []string{user.RoleStudent}, ada.Roles)
	assert.NoError(t, ada.CheckPassword("new"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.edu", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.edu"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(t, cli); err != nil {
				return
			}
			refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}
