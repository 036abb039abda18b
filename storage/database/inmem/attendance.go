package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/kannanru/studentfee/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance}
}

func attendanceKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (repo *attendanceRepository) UpsertRecords(_ context.Context, recs []attendance.Record) ([]attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	res := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		key := attendanceKey(rec.StudentID, rec.Date)
		if orig, ok := repo.db.table[key]; ok {
			rec.ID = orig.ID
			rec.CreatedAt = orig.CreatedAt
		}
		rec := rec
		repo.db.table[key] = &rec
		res = append(res, rec)
	}
	return res, nil
}

func (repo *attendanceRepository) ListByDate(_ context.Context, date time.Time) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]attendance.Record, 0)
	for _, rec := range repo.db.table {
		if rec.Date.Equal(date) {
			res = append(res, *rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StudentID < res[j].StudentID })
	return res, nil
}
