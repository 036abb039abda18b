package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/student"
)

type studentRow struct {
	ID            string      `db:"id"`
	RollNo        string      `db:"roll_no"`
	Name          string      `db:"name"`
	Program       string      `db:"program"`
	Year          int         `db:"year"`
	Quota         string      `db:"quota"`
	GuardianName  string      `db:"guardian_name"`
	GuardianEmail null.String `db:"guardian_email"`
	IsActive      bool        `db:"is_active"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:            r.ID,
		RollNo:        r.RollNo,
		Name:          r.Name,
		Program:       r.Program,
		Year:          r.Year,
		Quota:         r.Quota,
		GuardianName:  r.GuardianName,
		GuardianEmail: r.GuardianEmail.String,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

const studentColumns = "id, roll_no, name, program, year, quota, guardian_name, guardian_email, is_active, created_at, updated_at"

type studentRepository struct {
	db core.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db core.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	std.ID = uuid.NewString()
	row := studentRow{
		ID:            std.ID,
		RollNo:        std.RollNo,
		Name:          std.Name,
		Program:       std.Program,
		Year:          std.Year,
		Quota:         std.Quota,
		GuardianName:  std.GuardianName,
		GuardianEmail: null.NewString(std.GuardianEmail, std.GuardianEmail != ""),
		IsActive:      std.IsActive,
		CreatedAt:     std.CreatedAt,
		UpdatedAt:     std.UpdatedAt,
	}
	q := "INSERT INTO students (" + studentColumns + ") VALUES " +
		"(:id, :roll_no, :name, :program, :year, :quota, :guardian_name, :guardian_email, :is_active, :created_at, :updated_at)"
	if _, err := namedExec(ctx, repo.db, q, row); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return student.Student{}, student.ErrRollNoExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			w.add("(name ILIKE $%[1]d OR roll_no ILIKE $%[1]d)", "%"+filter.Search+"%")
		}
		if filter.Program != "" {
			w.add("program = $%d", filter.Program)
		}
		if filter.Year != 0 {
			w.add("year = $%d", filter.Year)
		}
		if filter.IsActive != nil {
			w.add("is_active = $%d", *filter.IsActive)
		}
	}

	var rows []studentRow
	q := "SELECT " + studentColumns + " FROM students" + w.String() + orderBy(ordering, "name ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	res := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toStudent())
	}
	return res, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+studentColumns+" FROM students WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return student.Student{}, student.ErrNotFound
	}
	if err != nil {
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) CountStudents(ctx context.Context) (student.Summary, error) {
	var rows []struct {
		Program string `db:"program"`
		Active  bool   `db:"is_active"`
		Count   int    `db:"count"`
	}
	q := "SELECT program, is_active, COUNT(*) AS count FROM students GROUP BY program, is_active"
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return student.Summary{}, errors.Wrap(err, "counting students")
	}
	sum := student.Summary{ByProgram: make(map[string]int)}
	for _, r := range rows {
		sum.Total += r.Count
		if r.Active {
			sum.Active += r.Count
			sum.ByProgram[r.Program] += r.Count
		}
	}
	return sum, nil
}
