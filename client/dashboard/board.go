package dashboard

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/client/gateway"
	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/event"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
)

const LivePath = "/v1/live"

// Streamer reads a server-sent events feed; *gateway.Client is one.
type Streamer interface {
	Stream(ctx context.Context, path string, fn func(gateway.Message) error) error
}

// Row is the live status of one student.
type Row struct {
	Student       student.Student
	Collected     decimal.Decimal // since the board started
	LastReceipt   string
	LastPaymentAt time.Time
	Attendance    attendance.Status
	UpdatedAt     time.Time
}

// Board is a roster of students kept current by live events.
type Board struct {
	rows     map[string]*Row
	onChange func(Row)
	mutex    sync.RWMutex
}

// NewBoard starts a board for the given roster. onChange, if not nil, is called after every
// applied event.
func NewBoard(roster []student.Student, onChange func(Row)) *Board {
	b := &Board{rows: make(map[string]*Row, len(roster)), onChange: onChange}
	for _, std := range roster {
		b.rows[std.ID] = &Row{Student: std, Collected: decimal.Zero}
	}
	return b
}

type liveEvent struct {
	Type      event.Type      `json:"type"`
	StudentID string          `json:"student_id"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

// Apply updates the board from one live message. Events about students not on the roster, and
// event types the board does not show, are ignored.
func (b *Board) Apply(msg gateway.Message) (bool, error) {
	var evt liveEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		return false, errors.Wrap(err, "decoding live event")
	}

	b.mutex.Lock()
	row, ok := b.rows[evt.StudentID]
	if !ok {
		b.mutex.Unlock()
		return false, nil
	}

	switch evt.Type {
	case event.PaymentRecorded:
		var pmt fee.Payment
		if err := json.Unmarshal(evt.Payload, &pmt); err != nil {
			b.mutex.Unlock()
			return false, errors.Wrap(err, "decoding payment")
		}
		row.Collected = row.Collected.Add(pmt.Total)
		row.LastReceipt = pmt.ReceiptNo
		row.LastPaymentAt = pmt.PaidAt
	case event.AttendanceMarked:
		var rec attendance.Record
		if err := json.Unmarshal(evt.Payload, &rec); err != nil {
			b.mutex.Unlock()
			return false, errors.Wrap(err, "decoding attendance")
		}
		row.Attendance = rec.Status
	default:
		b.mutex.Unlock()
		return false, nil
	}
	row.UpdatedAt = evt.At
	snapshot := *row
	b.mutex.Unlock()

	if b.onChange != nil {
		b.onChange(snapshot)
	}
	return true, nil
}

// Watch applies the live feed until ctx is done or the feed ends. Malformed events are skipped.
func (b *Board) Watch(ctx context.Context, s Streamer) error {
	return s.Stream(ctx, LivePath, func(msg gateway.Message) error {
		_, _ = b.Apply(msg)
		return nil
	})
}

// Snapshot returns a copy of the board sorted by student name.
func (b *Board) Snapshot() []Row {
	b.mutex.RLock()
	rows := make([]Row, 0, len(b.rows))
	for _, row := range b.rows {
		rows = append(rows, *row)
	}
	b.mutex.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		ni, nj := strings.ToLower(rows[i].Student.Name), strings.ToLower(rows[j].Student.Name)
		if ni == nj {
			return rows[i].Student.RollNo < rows[j].Student.RollNo
		}
		return ni < nj
	})
	return rows
}
