package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
)

// Roles
const (
	RoleAdmin     = "admin:"
	RoleProfessor = "professor:"
	RoleStudent   = "student:"
)

var (
	AdminRoles     = []string{RoleAdmin}
	ProfessorRoles = []string{RoleProfessor}
	StudentRoles   = []string{RoleStudent}
	AllRoles       = getAllRoles()

	rolePriorities = map[string]int{
		RoleAdmin:     30,
		RoleProfessor: 20,
		RoleStudent:   10,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Professor", Value: RoleProfessor},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 3)
	all = append(all, AdminRoles...)
	all = append(all, ProfessorRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Username     string                `json:"username"`
	Email        string                `json:"email"`
	IsActive     *bool                 `json:"is_active"`
	Roles        []string              `json:"roles"`
	Skills       grouping.SkillProfile `json:"skills"`
	PasswordHash []byte                `json:"-"`
	CreatedAt    time.Time             `json:"created_at"` // UTC
	UpdatedAt    time.Time             `json:"updated_at"` // UTC
	LastLogin    time.Time             `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsProfessor() bool {
	return u.RoleStartsWith(RoleProfessor)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// DisplayName is the name shown to classmates; falls back to the username.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Member returns the roster view of u used by the grouping engine.
func (u User) Member() grouping.Member {
	return grouping.Member{
		ID:          u.ID,
		DisplayName: u.DisplayName(),
		Email:       u.Email,
		Profile:     u.Skills,
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// SkillSurvey is the self-assessment a student submits; every rating is on the 0-5 scale and
// a missing rating counts as 0.
type SkillSurvey struct {
	Research  *int `json:"research" validate:"omitempty,min=0,max=5"`
	Writing   *int `json:"writing" validate:"omitempty,min=0,max=5"`
	Design    *int `json:"design" validate:"omitempty,min=0,max=5"`
	Technical *int `json:"technical" validate:"omitempty,min=0,max=5"`
}

func (ss *SkillSurvey) Validate(validate *validator.Validate) error {
	return validate.Struct(ss)
}

func (ss SkillSurvey) Profile() grouping.SkillProfile {
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return grouping.SkillProfile{
		Research:  deref(ss.Research),
		Writing:   deref(ss.Writing),
		Design:    deref(ss.Design),
		Technical: deref(ss.Technical),
	}
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}
