package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/event"
	"github.com/kannanru/studentfee/core/student"
)

type (
	Repository interface {
		// UpsertRecords creates or replaces the record of each student for its day.
		UpsertRecords(ctx context.Context, recs []Record) ([]Record, error)
		ListByDate(ctx context.Context, date time.Time) ([]Record, error)
	}

	StudentGetter interface {
		GetByID(ctx context.Context, id string) (student.Student, error)
	}

	Service struct {
		repo     Repository
		students StudentGetter
		bus      event.Publisher
		loc      *time.Location
	}
)

func NewService(repo Repository, students StudentGetter, bus event.Publisher, conf *core.Config) *Service {
	if bus == nil {
		bus = event.Discard
	}
	return &Service{repo: repo, students: students, bus: bus, loc: conf.Fees.Location()}
}

// Day truncates t to its calendar day (read in t's location) at midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (svc *Service) day(t time.Time) time.Time {
	if t.IsZero() {
		return Day(core.Today(svc.loc))
	}
	return Day(t)
}

// Mark records the attendance of every student in nm, replacing earlier marks for the same day.
func (svc *Service) Mark(ctx context.Context, nm NewMarks, markedBy string) ([]Record, error) {
	date := svc.day(nm.Date)
	now := core.NowFunc()

	recs := make([]Record, 0, len(nm.Marks))
	for _, m := range nm.Marks {
		if _, err := svc.students.GetByID(ctx, m.StudentID); err != nil {
			if err == student.ErrNotFound {
				return nil, core.NewFieldValidationError("marks", errors.Errorf("unknown student %q", m.StudentID))
			}
			return nil, err
		}
		recs = append(recs, Record{
			ID:        uuid.NewString(),
			StudentID: m.StudentID,
			Date:      date,
			Status:    m.Status,
			MarkedBy:  markedBy,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	recs, err := svc.repo.UpsertRecords(ctx, recs)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		svc.bus.Publish(event.Event{Type: event.AttendanceMarked, StudentID: rec.StudentID, At: now, Payload: rec})
	}
	return recs, nil
}

func (svc *Service) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	return svc.repo.ListByDate(ctx, svc.day(date))
}

func (svc *Service) Summary(ctx context.Context, date time.Time) (Summary, error) {
	date = svc.day(date)
	recs, err := svc.repo.ListByDate(ctx, date)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Date: date, Total: len(recs)}
	for _, rec := range recs {
		switch rec.Status {
		case Present:
			sum.Present++
		case Absent:
			sum.Absent++
		case Late:
			sum.Late++
		}
	}
	return sum, nil
}
