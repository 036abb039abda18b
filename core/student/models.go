package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kannanru/studentfee/core"
)

// Student is looked up by the fee workflow, never mutated by it.
type Student struct {
	ID            string    `json:"id"`
	RollNo        string    `json:"roll_no"`
	Name          string    `json:"name"`
	Program       string    `json:"program"`
	Year          int       `json:"year"`
	Quota         string    `json:"quota"`
	GuardianName  string    `json:"guardian_name"`
	GuardianEmail string    `json:"guardian_email"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to enroll a Student.
type NewStudent struct {
	RollNo        string `json:"roll_no" validate:"required,alphanum_"`
	Name          string `json:"name" validate:"required,notblank"`
	Program       string `json:"program" validate:"required"`
	Year          int    `json:"year" validate:"required,min=1,max=8"`
	Quota         string `json:"quota" validate:"omitempty"`
	GuardianName  string `json:"guardian_name"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.RollNo = core.CleanString(ns.RollNo, true /* lower */)
	ns.Name = core.CleanString(ns.Name)
	ns.Program = core.CleanString(ns.Program)
	ns.Quota = core.CleanString(ns.Quota, true /* lower */)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	return validate.Struct(ns)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Program  string `query:"program"`
	Year     int    `query:"year"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Program = core.CleanString(qf.Program)
}

// Summary is the students panel of the dashboard overview.
type Summary struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	ByProgram map[string]int `json:"by_program"`
}
