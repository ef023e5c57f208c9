package inmemdb

import (
	"context"
	"sort"

	"github.com/tymastrangelo/groupgrade-sub000/core/class"
)

type classRepository struct {
	db *classTable
}

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db.class}
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.table {
		if c.Code == cls.Code {
			return class.Class{}, class.ErrCodeTaken
		}
	}
	c := cls
	repo.db.table[cls.ID] = &c
	return cls, nil
}

func (repo *classRepository) GetClassByID(_ context.Context, id string) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cls, ok := repo.db.table[id]; ok {
		return *cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) GetClassByCode(_ context.Context, code string) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cls := range repo.db.table {
		if cls.Code == code {
			return *cls, nil
		}
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryClassesForUser(_ context.Context, userID string) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]class.Class, 0)
	for _, cls := range repo.db.table {
		if cls.ProfessorID == userID || repo.isMember(cls.ID, userID) {
			classes = append(classes, *cls)
		}
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].CreatedAt.Equal(classes[j].CreatedAt) {
			return classes[i].ID < classes[j].ID
		}
		return classes[i].CreatedAt.After(classes[j].CreatedAt)
	})
	return classes, nil
}

func (repo *classRepository) AddMember(_ context.Context, m class.Membership) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[m.ClassID]; !ok {
		return class.ErrNotFound
	}
	if repo.isMember(m.ClassID, m.StudentID) {
		return class.ErrAlreadyMember
	}
	repo.db.members[m.ClassID] = append(repo.db.members[m.ClassID], m)
	return nil
}

func (repo *classRepository) IsMember(_ context.Context, classID, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.isMember(classID, studentID), nil
}

// isMember expects the table lock to be held.
func (repo *classRepository) isMember(classID, studentID string) bool {
	for _, m := range repo.db.members[classID] {
		if m.StudentID == studentID {
			return true
		}
	}
	return false
}

func (repo *classRepository) QueryMemberIDs(_ context.Context, classID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	members := repo.db.members[classID]
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.StudentID)
	}
	return ids, nil
}

func (repo *classRepository) SaveGroupSet(_ context.Context, gs class.GroupSet) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[gs.ClassID]; !ok {
		return class.ErrNotFound
	}
	stored := gs
	stored.Groups = make([]class.StoredGroup, 0, len(gs.Groups))
	for _, g := range gs.Groups {
		stored.Groups = append(stored.Groups, class.StoredGroup{
			Name:      g.Name,
			MemberIDs: append([]string(nil), g.MemberIDs...),
		})
	}
	repo.db.groups[gs.ClassID] = stored
	return nil
}

func (repo *classRepository) GetGroupSet(_ context.Context, classID string) (class.GroupSet, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if gs, ok := repo.db.groups[classID]; ok {
		return gs, nil
	}
	return class.GroupSet{}, class.ErrNoGroups
}
