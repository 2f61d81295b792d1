// Package inmemdb provides map-backed repositories used by tests and local
// experiments. They honor the same semantics as the postgres repositories.
package inmemdb

import (
	"sync"

	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/iep"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}
	districtTable struct {
		mutex sync.RWMutex
		table map[string]*district.District
	}
	studentTable struct {
		mutex    sync.RWMutex
		students map[string]*student.Student
		sessions map[string]*student.Session
	}
	iepTable struct {
		mutex sync.RWMutex
		table map[string]*iep.IEP
	}

	DB struct {
		user     *userTable
		district *districtTable
		student  *studentTable
		iep      *iepTable
	}
)

// Reset drops all rows. Used between test cases.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.district.mutex.Lock()
	db.district.table = make(map[string]*district.District)
	db.district.mutex.Unlock()

	db.student.mutex.Lock()
	db.student.students = make(map[string]*student.Student)
	db.student.sessions = make(map[string]*student.Session)
	db.student.mutex.Unlock()

	db.iep.mutex.Lock()
	db.iep.table = make(map[string]*iep.IEP)
	db.iep.mutex.Unlock()
}

func NewDB() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		district: &districtTable{table: make(map[string]*district.District)},
		student: &studentTable{
			students: make(map[string]*student.Student),
			sessions: make(map[string]*student.Session),
		},
		iep: &iepTable{table: make(map[string]*iep.IEP)},
	}
}
