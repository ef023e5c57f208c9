package class

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
)

// CodeLength is the length of a class join code.
const CodeLength = 8

type (
	Class struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Code        string    `json:"code"` // join code, handed out by the professor
		ProfessorID string    `json:"professor_id"`
		CreatedAt   time.Time `json:"created_at"` // UTC
		UpdatedAt   time.Time `json:"updated_at"` // UTC
	}

	Membership struct {
		ClassID   string    `json:"class_id"`
		StudentID string    `json:"student_id"`
		JoinedAt  time.Time `json:"joined_at"` // UTC
	}

	// StoredGroup is a formed group as persisted: member IDs only, profiles are resolved on read.
	StoredGroup struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}

	// GroupSet is the latest grouping of a class; forming groups again replaces it.
	GroupSet struct {
		ClassID  string        `json:"class_id"`
		Mode     grouping.Mode `json:"mode"`
		Groups   []StoredGroup `json:"groups"`
		FormedAt time.Time     `json:"formed_at"` // UTC
	}
)

func NewGroupSet(classID string, mode grouping.Mode, groups []grouping.Group, formedAt time.Time) GroupSet {
	gs := GroupSet{
		ClassID:  classID,
		Mode:     mode,
		Groups:   make([]StoredGroup, 0, len(groups)),
		FormedAt: formedAt,
	}
	for _, g := range groups {
		gs.Groups = append(gs.Groups, StoredGroup{Name: g.Name, MemberIDs: g.MemberIDs()})
	}
	return gs
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name        string `json:"name" validate:"required,notblank,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type JoinClass struct {
	Code string `json:"code" validate:"required,joincode"`
}

func (jc *JoinClass) Validate(validate *validator.Validate) error {
	jc.Code = NormalizeCode(jc.Code)
	return validate.Struct(jc)
}

// FormGroups is the body of a group formation request.
type FormGroups struct {
	Mode      grouping.Mode          `json:"mode" validate:"required,groupmode"`
	Groups    []grouping.ManualGroup `json:"groups" validate:"omitempty,dive"`
	GroupSize int                    `json:"group_size"` // clamped by the grouping engine, never rejected
}

func (fg *FormGroups) Validate(validate *validator.Validate) error {
	return validate.Struct(fg)
}

func (fg FormGroups) Request() grouping.Request {
	return grouping.Request{Mode: fg.Mode, Groups: fg.Groups, GroupSize: fg.GroupSize}
}
