package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
)

// addUser updates or creates an active user.User with the given roles.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.findUser(ctx, uname, email)
	create := errors.Is(err, user.ErrNotFound)
	if err != nil && !create {
		return err
	}
	if create {
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if name != "" {
		usr.Name = core.CleanString(name)
	}
	usr.Roles = append([]string(nil), roles...)
	usr.UpdatedAt = now
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if create {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return errors.Wrap(err, "saving user")
	}
	cli.logger.Info(fmt.Sprintf("adduser: %s saved (%s)", usr.DisplayName(), usr.ID))
	return nil
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	for _, key := range []string{uname, email} {
		if key == "" {
			continue
		}
		usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, key)
		if !errors.Is(err, user.ErrNotFound) {
			return usr, err
		}
	}
	return user.User{}, user.ErrNotFound
}
