package user

import (
	"context"

	"github.com/tymastrangelo/groupgrade-sub000/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service which sends its mails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{service: newService(repo, mailSvc, conf, core.NewNopLogger())}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active() || usr.Email == "" {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
