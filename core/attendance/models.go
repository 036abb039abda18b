package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
	Late    Status = "late"
)

// Record is the attendance of one student on one day.
type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date"` // calendar day, midnight UTC
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"marked_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Mark struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    Status `json:"status" validate:"required,oneof=present absent late"`
}

// NewMarks marks several students for the same day. A zero Date means today.
type NewMarks struct {
	Date  time.Time `json:"date"`
	Marks []Mark    `json:"marks" validate:"required,min=1,dive"`
}

func (nm *NewMarks) Validate(validate *validator.Validate) error {
	return validate.Struct(nm)
}

// Summary is the attendance panel of the dashboard overview.
type Summary struct {
	Date    time.Time `json:"date"`
	Total   int       `json:"total"`
	Present int       `json:"present"`
	Absent  int       `json:"absent"`
	Late    int       `json:"late"`
}
