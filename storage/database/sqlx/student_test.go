package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/storage/database/sqlx"
)

func TestStudentRepository(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	repo := sqlxrepos.NewStudentRepository(db)
	tok := uuid.NewString()[:8]
	program := "BSc CS " + tok

	create := func(roll, name string, year int, active bool, guardianEmail string) student.Student {
		std, err := repo.CreateStudent(ctx, student.Student{
			RollNo: roll + tok, Name: name, Program: program, Year: year, Quota: "general",
			GuardianName: "Guardian of " + name, GuardianEmail: guardianEmail, IsActive: active,
			CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		return std
	}
	asha := create("cs001", "Asha Rao", 1, true, "ravi@example.com")
	bala := create("cs002", "Bala K", 1, true, "")
	dev := create("cs201", "Dev S", 2, false, "")

	t.Run("unique roll number", func(t *testing.T) {
		_, err := repo.CreateStudent(ctx, student.Student{RollNo: asha.RollNo, Name: "Copy", Program: program, Year: 1, CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, student.ErrRollNoExists, err)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetStudent(ctx, asha.ID)
		require.NoError(t, err)
		assert.Equal(t, asha.RollNo, got.RollNo)
		assert.Equal(t, "ravi@example.com", got.GuardianEmail)
		assert.Equal(t, "general", got.Quota)
		assert.True(t, now.Equal(got.CreatedAt))

		got, err = repo.GetStudent(ctx, bala.ID)
		require.NoError(t, err)
		assert.Empty(t, got.GuardianEmail)

		for _, id := range []string{"nope", uuid.NewString()} {
			_, err = repo.GetStudent(ctx, id)
			assert.Equal(t, student.ErrNotFound, err, id)
		}
	})

	t.Run("query", func(t *testing.T) {
		active := true
		tests := []struct {
			name     string
			filter   student.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "program by name", filter: student.QueryFilter{Program: program}, want: []string{asha.ID, bala.ID, dev.ID}},
			{
				name: "by roll number desc", filter: student.QueryFilter{Program: program},
				ordering: []core.DBOrdering{{Field: "roll_no", Ascending: false}}, want: []string{dev.ID, bala.ID, asha.ID},
			},
			{name: "year", filter: student.QueryFilter{Program: program, Year: 2}, want: []string{dev.ID}},
			{name: "active", filter: student.QueryFilter{Program: program, IsActive: &active}, want: []string{asha.ID, bala.ID}},
			{name: "search roll number", filter: student.QueryFilter{Search: "cs002" + tok}, want: []string{bala.ID}},
			{name: "search name", filter: student.QueryFilter{Program: program, Search: "asha"}, want: []string{asha.ID}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				filter := tc.filter
				stds, err := repo.QueryStudents(ctx, &filter, tc.ordering)
				require.NoError(t, err)
				ids := make([]string, 0, len(stds))
				for _, s := range stds {
					ids = append(ids, s.ID)
				}
				assert.Equal(t, tc.want, ids)
			})
		}
	})

	t.Run("count", func(t *testing.T) {
		sum, err := repo.CountStudents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.ByProgram[program])
		assert.GreaterOrEqual(t, sum.Total, 3)
		assert.GreaterOrEqual(t, sum.Active, 2)
	})
}
