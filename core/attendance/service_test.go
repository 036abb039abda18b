package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/event"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/services/eventbus"
	inmemdb "github.com/kannanru/studentfee/storage/database/inmem"
	testutil "github.com/kannanru/studentfee/tests"
)

func TestService(t *testing.T) {
	origNow := core.NowFunc
	core.NowFunc = func() time.Time { return time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC) }
	defer func() { core.NowFunc = origNow }()

	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.Fees.Timezone = "Asia/Kolkata"
	db := inmemdb.Open()
	stdRepo := inmemdb.NewStudentRepository(db)
	bus := eventbus.NewInMemoryBus(nil)
	var marked int
	bus.Subscribe(event.AttendanceMarked, func(event.Event) error {
		marked++
		return nil
	})
	svc := attendance.NewService(inmemdb.NewAttendanceRepository(db), student.NewService(stdRepo), bus, conf)

	a := testutil.CreateStudent(t, stdRepo, "cs001", "Asha", "BSc CS", 1, true)
	b := testutil.CreateStudent(t, stdRepo, "cs002", "Bala", "BSc CS", 1, true)

	recs, err := svc.Mark(ctx, attendance.NewMarks{Marks: []attendance.Mark{
		{StudentID: a.ID, Status: attendance.Present},
		{StudentID: b.ID, Status: attendance.Absent},
	}}, "teacher-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// 20:00 UTC is already the 19th in Kolkata
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), recs[0].Date)
	assert.Equal(t, 2, marked)

	// re-marking replaces the day's record
	recs2, err := svc.Mark(ctx, attendance.NewMarks{Marks: []attendance.Mark{{StudentID: b.ID, Status: attendance.Late}}}, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, recs[1].ID, recs2[0].ID)

	_, err = svc.Mark(ctx, attendance.NewMarks{Marks: []attendance.Mark{{StudentID: "nope", Status: attendance.Late}}}, "teacher-1")
	assert.True(t, core.IsValidation(err))

	sum, err := svc.Summary(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, attendance.Summary{Date: recs[0].Date, Total: 2, Present: 1, Late: 1}, sum)

	list, err := svc.ListByDate(ctx, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, list)
}
