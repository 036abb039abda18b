package inmemdb

import (
	"sync"

	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/core/user"
)

// DB is an in-memory database; each table is guarded by its own mutex.
type DB struct {
	user       *userTable
	student    *studentTable
	fee        *feeTables
	attendance *attendanceTable
}

type (
	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	studentTable struct {
		table map[string]*student.Student
		mutex sync.RWMutex
	}

	// plans, payments and orders share a lock: recording a payment consumes its order.
	feeTables struct {
		plans    map[string]*fee.Plan
		payments []*fee.Payment
		orders   map[string]*fee.Order
		mutex    sync.RWMutex
	}

	attendanceTable struct {
		table map[string]*attendance.Record // {studentID|date: record}
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		student:    &studentTable{table: make(map[string]*student.Student)},
		fee:        &feeTables{plans: make(map[string]*fee.Plan), orders: make(map[string]*fee.Order)},
		attendance: &attendanceTable{table: make(map[string]*attendance.Record)},
	}
}
