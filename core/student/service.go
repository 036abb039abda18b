package student

import (
	"context"
	"errors"

	"github.com/kannanru/studentfee/core"
)

var (
	// errors
	ErrNotFound     = errors.New("student not found")
	ErrRollNoExists = errors.New("a student with this roll number already exists")
)

// OrderingFields are the fields students can be ordered by.
var OrderingFields = []string{"name", "roll_no", "program", "year", "created_at"}

type (
	Repository interface {
		CreateStudent(ctx context.Context, std Student) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		CountStudents(ctx context.Context) (Summary, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := core.NowFunc()
	std, err := svc.repo.CreateStudent(ctx, Student{
		RollNo:        ns.RollNo,
		Name:          ns.Name,
		Program:       ns.Program,
		Year:          ns.Year,
		Quota:         ns.Quota,
		GuardianName:  ns.GuardianName,
		GuardianEmail: ns.GuardianEmail,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err == ErrRollNoExists {
		return Student{}, core.NewFieldValidationError("roll_no", err)
	}
	return std, err
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, core.AllowedOrderings(ordering, OrderingFields...))
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Summary(ctx context.Context) (Summary, error) {
	return svc.repo.CountStudents(ctx)
}
