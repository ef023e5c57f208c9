package inmemdb

import (
	"sync"

	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
)

type (
	// DB is an in-memory database; its repositories are safe for concurrent use.
	DB struct {
		user  *userTable
		class *classTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	classTable struct {
		table   map[string]*class.Class
		members map[string][]class.Membership // by class ID, in join order
		groups  map[string]class.GroupSet     // by class ID
		mutex   sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		class: &classTable{
			table:   make(map[string]*class.Class),
			members: make(map[string][]class.Membership),
			groups:  make(map[string]class.GroupSet),
		},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.class.mutex.Lock()
	db.class.table = make(map[string]*class.Class)
	db.class.members = make(map[string][]class.Membership)
	db.class.groups = make(map[string]class.GroupSet)
	db.class.mutex.Unlock()
}
