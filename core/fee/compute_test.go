package fee

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

func testPlan() Plan {
	return Plan{
		ID: "p1",
		Heads: []Head{
			{ID: "tuition", Name: "Tuition", Amount: d("1000"), TaxPercent: d("0")},
			{ID: "library", Name: "Library", Amount: d("200"), TaxPercent: d("18")},
			{ID: "lab", Name: "Lab", Amount: d("333.33"), TaxPercent: d("5")},
		},
		Installments: []Installment{
			{Number: 1, DueDate: date(2026, 8, 1), FinePerDay: d("10"), HeadIDs: []string{"tuition"}},
			{Number: 2, DueDate: date(2026, 9, 1), FinePerDay: d("20"), HeadIDs: []string{"library", "lab"}},
		},
	}
}

func statuses(plan Plan, paid ...string) []HeadStatus {
	isPaid := make(map[string]bool)
	for _, id := range paid {
		isPaid[id] = true
	}
	res := make([]HeadStatus, 0, len(plan.Heads))
	for _, h := range plan.Heads {
		res = append(res, HeadStatus{Head: h, Payable: h.Payable(), Paid: isPaid[h.ID]})
	}
	return res
}

func TestHead_Payable(t *testing.T) {
	tests := []struct {
		amount string
		tax    string
		want   string
	}{
		{"1000", "0", "1000"},
		{"1000", "18", "1180"},
		{"200", "18", "236"},
		{"333.33", "5", "350"}, // 349.9965
		{"99.99", "12.5", "112.49"},
	}
	for _, tc := range tests {
		t.Run(tc.amount+"@"+tc.tax, func(t *testing.T) {
			h := Head{Amount: d(tc.amount), TaxPercent: d(tc.tax)}
			assert.True(t, d(tc.want).Equal(h.Payable()), "got %s", h.Payable())
		})
	}
}

func TestDaysBetween(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"same day", date(2026, 10, 8), date(2026, 10, 8), 0},
		{"ten days", date(2026, 10, 8), date(2026, 10, 18), 10},
		{"negative", date(2026, 10, 18), date(2026, 10, 8), -10},
		{"across month", date(2026, 9, 30), date(2026, 10, 1), 1},
		{"ignores clock", date(2026, 10, 8), time.Date(2026, 10, 9, 23, 59, 0, 0, time.UTC), 1},
		{"calendar day in own zone", date(2026, 10, 8), time.Date(2026, 10, 9, 0, 30, 0, 0, ist), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DaysBetween(tc.from, tc.to))
		})
	}
}

func TestComputeFine(t *testing.T) {
	plan := testPlan()

	tests := []struct {
		name     string
		plan     Plan
		paid     []string
		today    time.Time
		wantInst int
		wantDays int
		want     string
	}{
		{name: "no installments", plan: Plan{Heads: plan.Heads}, today: date(2026, 10, 18), want: "0"},
		{name: "nothing due yet", plan: plan, today: date(2026, 7, 1), want: "0"},
		{name: "due today is not overdue", plan: plan, today: date(2026, 8, 1), want: "0"},
		{name: "first installment overdue", plan: plan, today: date(2026, 8, 11), wantInst: 1, wantDays: 10, want: "100"},
		{
			name: "first overdue installment wins", plan: plan, today: date(2026, 9, 11),
			wantInst: 1, wantDays: 41, want: "410",
		},
		{
			name: "paid installment is skipped", plan: plan, paid: []string{"tuition"}, today: date(2026, 9, 11),
			wantInst: 2, wantDays: 10, want: "200",
		},
		{
			name: "partly paid installment is not fully paid", plan: plan, paid: []string{"tuition", "lab"}, today: date(2026, 9, 3),
			wantInst: 2, wantDays: 2, want: "40",
		},
		{name: "all paid", plan: plan, paid: []string{"tuition", "library", "lab"}, today: date(2026, 12, 1), want: "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fine := ComputeFine(tc.plan, statuses(tc.plan, tc.paid...), tc.today)
			assert.True(t, d(tc.want).Equal(fine.Amount), "got %s", fine.Amount)
			assert.Equal(t, tc.wantInst, fine.Installment)
			if tc.wantInst != 0 {
				assert.Equal(t, tc.wantDays, fine.DaysOverdue)
				days := decimal.NewFromInt(int64(fine.DaysOverdue))
				assert.True(t, fine.PerDay.Mul(days).Equal(fine.Amount))
			}
		})
	}
}

func TestComputeFine_unorderedInstallments(t *testing.T) {
	plan := testPlan()
	plan.Installments[0], plan.Installments[1] = plan.Installments[1], plan.Installments[0]

	fine := ComputeFine(plan, statuses(plan), date(2026, 9, 11))
	assert.Equal(t, 1, fine.Installment)
	assert.Equal(t, 2, plan.Installments[0].Number, "input left untouched")
}

func TestComputeFine_wholePlanInstallment(t *testing.T) {
	plan := testPlan()
	plan.Installments = []Installment{{Number: 1, DueDate: date(2026, 10, 1), FinePerDay: d("5")}}

	fine := ComputeFine(plan, statuses(plan, "tuition", "library"), date(2026, 10, 3))
	assert.True(t, d("10").Equal(fine.Amount))

	fine = ComputeFine(plan, statuses(plan, "tuition", "library", "lab"), date(2026, 10, 3))
	assert.True(t, fine.Amount.IsZero())
}

func TestComputeBreakdown(t *testing.T) {
	plan := testPlan()

	tests := []struct {
		name     string
		selected []string
		fine     string
		subtotal string
		tax      string
		total    string
	}{
		{name: "empty", fine: "0", subtotal: "0", tax: "0", total: "0"},
		{name: "single untaxed", selected: []string{"tuition"}, fine: "0", subtotal: "1000", tax: "0", total: "1000"},
		{name: "taxed", selected: []string{"library", "lab"}, fine: "0", subtotal: "533.33", tax: "52.67", total: "586"},
		{name: "with fine", selected: []string{"tuition", "library"}, fine: "410", subtotal: "1200", tax: "36", total: "1646"},
		{name: "unknown ignored", selected: []string{"tuition", "bus"}, fine: "0", subtotal: "1000", tax: "0", total: "1000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := ComputeBreakdown(plan, NewSelection(tc.selected...), d(tc.fine))
			assert.True(t, d(tc.subtotal).Equal(b.Subtotal), "subtotal %s", b.Subtotal)
			assert.True(t, d(tc.tax).Equal(b.Tax), "tax %s", b.Tax)
			assert.True(t, d(tc.fine).Equal(b.Fine), "fine %s", b.Fine)
			assert.True(t, d(tc.total).Equal(b.Total), "total %s", b.Total)
		})
	}
}

func TestComputeBreakdown_totalIsSumOfPayablesPlusFine(t *testing.T) {
	plan := testPlan()
	today := date(2026, 9, 11)
	fine := ComputeFine(plan, statuses(plan), today)

	subsets := [][]string{{}, {"tuition"}, {"library"}, {"lab"}, {"tuition", "lab"}, {"tuition", "library", "lab"}}
	for _, ids := range subsets {
		want := fine.Amount
		for _, id := range ids {
			h, _ := plan.Head(id)
			want = want.Add(h.Payable())
		}
		got := ComputeBreakdown(plan, NewSelection(ids...), fine.Amount)
		assert.True(t, want.Equal(got.Total), "%v: want %s, got %s", ids, want, got.Total)
	}
}

func TestComputeBreakdown_overdueScenario(t *testing.T) {
	today := date(2026, 10, 18)
	plan := Plan{
		ID:           "p1",
		Heads:        []Head{{ID: "tuition", Name: "Tuition", Amount: d("1000")}},
		Installments: []Installment{{Number: 1, DueDate: today.AddDate(0, 0, -10), FinePerDay: d("50")}},
	}

	fine := ComputeFine(plan, statuses(plan), today)
	assert.True(t, d("500").Equal(fine.Amount))

	b := ComputeBreakdown(plan, NewSelection("tuition"), fine.Amount)
	assert.True(t, d("1500").Equal(b.Total), "got %s", b.Total)
}

func TestSelection_Toggle(t *testing.T) {
	tests := []struct {
		name    string
		initial []string
		id      string
	}{
		{"add to empty", nil, "a"},
		{"add", []string{"a"}, "b"},
		{"remove", []string{"a", "b"}, "a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSelection(tc.initial...)
			once := s.Toggle(tc.id)
			assert.NotEqual(t, s.Has(tc.id), once.Has(tc.id))
			assert.True(t, once.Toggle(tc.id).Equal(s))
			assert.Equal(t, len(tc.initial), s.Len(), "original unchanged")
		})
	}
}

func TestSelection(t *testing.T) {
	s := NewSelection("c", "a", "b", "a")
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"a", "b", "c"}, s.IDs())
	assert.True(t, s.Has("b"))
	assert.False(t, s.Has("z"))
	assert.Equal(t, 0, s.Clear().Len())
	assert.Equal(t, 3, s.Len())

	var zero Selection
	assert.Equal(t, 0, zero.Len())
	assert.False(t, zero.Has("a"))
	assert.True(t, zero.Toggle("a").Has("a"))
}
