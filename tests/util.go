// Package testutil holds helpers shared by the tests of several packages.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	inmemdb "github.com/tymastrangelo/groupgrade-sub000/storage/database/inmem"
)

// PrepareDB returns an empty in-memory database.
func PrepareDB(t *testing.T) *inmemdb.DB {
	t.Helper()
	return inmemdb.Open()
}

// NewValidator returns a validator with every app validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	class.InitValidators(validate, translator)
	user.LoadCommonPasswords(core.NewNopLogger())
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateStudent creates an active student who filled the skills survey.
func CreateStudent(t *testing.T, repo user.Repository, name, uname string, skills grouping.SkillProfile) user.User {
	t.Helper()
	usr := CreateUser(t, repo, name, uname, uname+"@test.edu", "", []string{user.RoleStudent}, true)
	usr.Skills = skills
	usr, err := repo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo class.Repository, professor user.User, name, code string) class.Class {
	t.Helper()
	now := time.Now().UTC()
	cls, err := repo.CreateClass(context.Background(), class.Class{
		ID:          name + "-id",
		Name:        name,
		Code:        code,
		ProfessorID: professor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	return cls
}

func Enroll(t *testing.T, repo class.Repository, cls class.Class, students ...user.User) {
	t.Helper()
	for _, s := range students {
		err := repo.AddMember(context.Background(), class.Membership{
			ClassID:   cls.ID,
			StudentID: s.ID,
			JoinedAt:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("Enroll(): %v", err)
		}
	}
}

// Skills returns a profile whose ratings add up to total (at most 20).
func Skills(total int) grouping.SkillProfile {
	var p grouping.SkillProfile
	for _, r := range []*int{&p.Research, &p.Writing, &p.Design, &p.Technical} {
		*r = min(total, grouping.MaxRating)
		total -= *r
	}
	return p
}
