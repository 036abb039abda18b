package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.table {
		if s.RollNo == std.RollNo {
			return student.Student{}, student.ErrRollNoExists
		}
	}
	std.ID = uuid.NewString()
	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(student.QueryFilter)
	}
	search := strings.ToLower(filter.Search)
	res := make([]student.Student, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		if search != "" && !strings.Contains(strings.ToLower(s.Name), search) && !strings.Contains(s.RollNo, search) {
			continue
		}
		if filter.Program != "" && s.Program != filter.Program {
			continue
		}
		if filter.Year != 0 && s.Year != filter.Year {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		res = append(res, *s)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(res, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareStudents(res[i], res[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func compareStudents(a, b student.Student, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "roll_no":
		return strings.Compare(a.RollNo, b.RollNo)
	case "program":
		return strings.Compare(a.Program, b.Program)
	case "year":
		return a.Year - b.Year
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if std, ok := repo.db.table[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) CountStudents(_ context.Context) (student.Summary, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sum := student.Summary{Total: len(repo.db.table), ByProgram: make(map[string]int)}
	for _, s := range repo.db.table {
		if s.IsActive {
			sum.Active++
			sum.ByProgram[s.Program]++
		}
	}
	return sum, nil
}
