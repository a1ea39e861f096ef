package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/cohort/apps/api/echo"
	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
	"github.com/trezcool/cohort/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)

	return &commandLine{
		conf:     env.Conf,
		out:      out,
		usrSvc:   env.UserSvc,
		resolver: env.Resolver,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantAnyErr bool
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantAnyErr:
				assert.Error(t, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				require.NoError(t, err)
				if tt.wantOut != "" {
					assert.Contains(t, out.String(), tt.wantOut)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "cohorts", "sql"}},
	}
	runCLITests(t, cli, out, tests)
}

func Test_commandLine_users(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "adduser: invalid role", args: []string{"adduser", "-name", "Bob", "-username", "bob", "-email", "bob@test.cd", "-role", "god"}, wantAnyErr: true},
		{name: "adduser", args: []string{"adduser", "-name", "Bob", "-username", "Bob", "-email", "bob@test.cd"}, wantOut: `created student "bob"`},
		{name: "adduser: username taken", args: []string{"adduser", "-name", "Bob", "-username", "bob", "-email", "bob2@test.cd"}, wantErrStr: user.ErrUsernameExists.Error()},
		{name: "approve: no username", args: []string{"approve"}, wantErr: errHelp},
		{name: "approve: unknown user", args: []string{"approve", "-username", "lol"}, wantErr: core.ErrNotFound},
		{name: "approve", args: []string{"approve", "-username", "bob"}, wantOut: `approved "bob"`},
	}
	runCLITests(t, cli, out, tests)

	bob, err := env.UserSvc.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bob.IsApproved)
	assert.Equal(t, "Bob", bob.Name)
}

func Test_commandLine_enroll(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	s1 := testutil.CreateStudent(t, env.UserRepo, "s1")
	s2 := testutil.CreateStudent(t, env.UserRepo, "s2")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	batch := testutil.CreateBatch(t, env.CourseRepo, crs, "B1", mentor.ID, s1)
	testutil.CreateTask(t, env, admin, task.NewTask{Title: "T1", CourseID: crs.ID})

	tests := []cliTest{
		{name: "no batch", args: []string{"enroll", "-students", "s2"}, wantErr: errHelp},
		{name: "no students", args: []string{"enroll", "-batch", batch.ID}, wantErr: errHelp},
		{name: "unknown student", args: []string{"enroll", "-batch", batch.ID, "-students", "lol"}, wantErr: core.ErrNotFound},
		{name: "unknown batch", args: []string{"enroll", "-batch", "lol", "-students", "s2"}, wantErr: core.ErrNotFound},
		{name: "enroll", args: []string{"enroll", "-batch", batch.ID, "-students", "s1, s2"}, wantOut: "added 1 student(s) to batch " + batch.ID + ": " + s2.ID},
		{name: "unenroll", args: []string{"unenroll", "-batch", batch.ID, "-students", "s2"}, wantOut: "removed 1 student(s) from batch " + batch.ID},
	}
	runCLITests(t, cli, out, tests)

	assigned, err := env.Gate.ListForStudent(ctx, s2.ID)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)
	assert.Len(t, testutil.NotificationsOfType(t, env, s2.ID, "batch_assigned"), 1)
}

func Test_commandLine_token(t *testing.T) {
	cli, env, out := setup(t)
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")

	runCLITests(t, cli, out, []cliTest{
		{name: "no username", args: []string{"token"}, wantErr: errHelp},
		{name: "unknown user", args: []string{"token", "-username", "lol"}, wantErr: core.ErrNotFound},
	})

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "token", "-username", "mentor"}))

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(env.Conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, mentor.ID, claims.Subject)
	assert.Equal(t, user.RoleMentor, claims.Role)
	assert.True(t, claims.IsApproved)
}
