// Package dashboard implements the read paths of the operator dashboard: the overview panels and
// the live student status board.
package dashboard

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
)

type (
	StudentSummaries interface {
		Summary(ctx context.Context) (student.Summary, error)
	}

	FeeSummaries interface {
		Summary(ctx context.Context) (fee.Summary, error)
	}

	AttendanceSummaries interface {
		Summary(ctx context.Context, date time.Time) (attendance.Summary, error)
	}

	// Overview is the landing page of the dashboard.
	Overview struct {
		Students   student.Summary
		Fees       fee.Summary
		Attendance attendance.Summary
	}
)

// LoadOverview fetches the three panels concurrently. The first failure cancels the others.
func LoadOverview(ctx context.Context, stds StudentSummaries, fees FeeSummaries, att AttendanceSummaries) (Overview, error) {
	var ov Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		ov.Students, err = stds.Summary(ctx)
		return errors.Wrap(err, "students summary")
	})
	g.Go(func() (err error) {
		ov.Fees, err = fees.Summary(ctx)
		return errors.Wrap(err, "fees summary")
	})
	g.Go(func() (err error) {
		ov.Attendance, err = att.Summary(ctx, time.Time{})
		return errors.Wrap(err, "attendance summary")
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}
