package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/attendance"
)

type attendanceRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	Date      time.Time `db:"date"`
	Status    string    `db:"status"`
	MarkedBy  string    `db:"marked_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r attendanceRow) toRecord() attendance.Record {
	return attendance.Record{
		ID:        r.ID,
		StudentID: r.StudentID,
		Date:      attendance.Day(r.Date),
		Status:    attendance.Status(r.Status),
		MarkedBy:  r.MarkedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	db core.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db core.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertRecords(ctx context.Context, recs []attendance.Record) ([]attendance.Record, error) {
	res := make([]attendance.Record, 0, len(recs))
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		for _, rec := range recs {
			var row attendanceRow
			q := `INSERT INTO attendance (id, student_id, date, status, marked_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (student_id, date) DO UPDATE
				SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
				RETURNING id, student_id, date, status, marked_by, created_at, updated_at`
			err := tx.GetContext(ctx, &row, q,
				rec.ID, rec.StudentID, rec.Date, string(rec.Status), rec.MarkedBy, rec.CreatedAt, rec.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, "upserting attendance")
			}
			res = append(res, row.toRecord())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (repo *attendanceRepository) ListByDate(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	var rows []attendanceRow
	q := "SELECT id, student_id, date, status, marked_by, created_at, updated_at FROM attendance WHERE date = $1 ORDER BY student_id"
	if err := repo.db.SelectContext(ctx, &rows, q, date); err != nil {
		return nil, errors.Wrap(err, "selecting attendance")
	}
	res := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toRecord())
	}
	return res, nil
}
