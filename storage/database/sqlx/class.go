package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
)

const classColumns = `id, name, description, code, professor_id, created_at, updated_at`

type classRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Code        string    `db:"code"`
	ProfessorID string    `db:"professor_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r classRow) class() class.Class {
	return class.Class{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Code:        r.Code,
		ProfessorID: r.ProfessorID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type groupSetRow struct {
	ClassID  string         `db:"class_id"`
	Mode     string         `db:"mode"`
	Groups   types.JSONText `db:"groups"`
	FormedAt time.Time      `db:"formed_at"`
}

type classRepository struct {
	exec core.DBExecutor
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(exec core.DBExecutor) class.Repository {
	return &classRepository{exec: exec}
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	_, err := repo.exec.ExecContext(ctx, `INSERT INTO classes (`+classColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cls.ID, cls.Name, cls.Description, cls.Code, cls.ProfessorID, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC())
	if err != nil {
		if constraint, ok := violatedConstraint(err); ok && constraint == "classes_code_key" {
			return class.Class{}, class.ErrCodeTaken
		}
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *classRepository) GetClassByID(ctx context.Context, id string) (class.Class, error) {
	var row classRow
	if err := repo.exec.GetContext(ctx, &row, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id); err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "getting class by ID")
	}
	return row.class(), nil
}

func (repo *classRepository) GetClassByCode(ctx context.Context, code string) (class.Class, error) {
	var row classRow
	if err := repo.exec.GetContext(ctx, &row, `SELECT `+classColumns+` FROM classes WHERE code = $1`, code); err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "getting class by code")
	}
	return row.class(), nil
}

func (repo *classRepository) QueryClassesForUser(ctx context.Context, userID string) ([]class.Class, error) {
	var rows []classRow
	err := repo.exec.SelectContext(ctx, &rows, `SELECT `+classColumns+` FROM classes c
		WHERE c.professor_id = $1 OR EXISTS (SELECT 1 FROM class_members m WHERE m.class_id = c.id AND m.student_id = $1)
		ORDER BY c.created_at DESC, c.id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo *classRepository) AddMember(ctx context.Context, m class.Membership) error {
	_, err := repo.exec.ExecContext(ctx,
		`INSERT INTO class_members (class_id, student_id, joined_at) VALUES ($1, $2, $3)`,
		m.ClassID, m.StudentID, m.JoinedAt.UTC())
	if err != nil {
		if constraint, ok := violatedConstraint(err); ok && constraint == "class_members_pkey" {
			return class.ErrAlreadyMember
		}
		return errors.Wrap(err, "inserting class member")
	}
	return nil
}

func (repo *classRepository) IsMember(ctx context.Context, classID, studentID string) (bool, error) {
	var ok bool
	err := repo.exec.GetContext(ctx, &ok,
		`SELECT EXISTS (SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2)`, classID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "checking class membership")
	}
	return ok, nil
}

func (repo *classRepository) QueryMemberIDs(ctx context.Context, classID string) ([]string, error) {
	ids := make([]string, 0)
	err := repo.exec.SelectContext(ctx, &ids,
		`SELECT student_id FROM class_members WHERE class_id = $1 ORDER BY seq`, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying class members")
	}
	return ids, nil
}

func (repo *classRepository) SaveGroupSet(ctx context.Context, gs class.GroupSet) error {
	groups, err := json.Marshal(gs.Groups)
	if err != nil {
		return errors.Wrap(err, "encoding groups")
	}
	_, err = repo.exec.ExecContext(ctx, `INSERT INTO group_sets (class_id, mode, groups, formed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (class_id) DO UPDATE SET mode = EXCLUDED.mode, groups = EXCLUDED.groups, formed_at = EXCLUDED.formed_at`,
		gs.ClassID, string(gs.Mode), types.JSONText(groups), gs.FormedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "saving group set")
	}
	return nil
}

func (repo *classRepository) GetGroupSet(ctx context.Context, classID string) (class.GroupSet, error) {
	var row groupSetRow
	err := repo.exec.GetContext(ctx, &row,
		`SELECT class_id, mode, groups, formed_at FROM group_sets WHERE class_id = $1`, classID)
	if err != nil {
		return class.GroupSet{}, trapNoRowsErr(err, class.ErrNoGroups, "getting group set")
	}
	gs := class.GroupSet{
		ClassID:  row.ClassID,
		Mode:     grouping.Mode(row.Mode),
		FormedAt: row.FormedAt.UTC(),
	}
	if err = row.Groups.Unmarshal(&gs.Groups); err != nil {
		return class.GroupSet{}, errors.Wrap(err, "decoding groups")
	}
	return gs, nil
}
