package fee

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Selection is an immutable set of fee head IDs.
type Selection struct {
	ids map[string]struct{}
}

func NewSelection(ids ...string) Selection {
	s := Selection{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Toggle returns a copy of s with id added if absent, removed if present.
func (s Selection) Toggle(id string) Selection {
	out := NewSelection(s.IDs()...)
	if _, ok := out.ids[id]; ok {
		delete(out.ids, id)
	} else {
		out.ids[id] = struct{}{}
	}
	return out
}

func (s Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// IDs returns the selected head IDs, sorted.
func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Selection) Len() int {
	return len(s.ids)
}

func (s Selection) Clear() Selection {
	return NewSelection()
}

func (s Selection) Equal(other Selection) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id := range s.ids {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Fine is the late-payment surcharge owed on a plan.
type Fine struct {
	Installment int             `json:"installment,omitempty"`
	DaysOverdue int             `json:"days_overdue"`
	PerDay      decimal.Decimal `json:"per_day"`
	Amount      decimal.Decimal `json:"amount"`
}

// Breakdown is the derived total of a selection.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Fine     decimal.Decimal `json:"fine"`
	Total    decimal.Decimal `json:"total"`
}

// DaysBetween returns the number of whole calendar days from `from` to `to`.
// Each date is read in its own location.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// ComputeFine finds the first installment, in due date order, that is due strictly before
// today and not fully paid; the fine is its days overdue times its per-day rate.
func ComputeFine(plan Plan, statuses []HeadStatus, today time.Time) Fine {
	paid := make(map[string]bool, len(statuses))
	for _, hs := range statuses {
		paid[hs.ID] = hs.Paid
	}

	installments := make([]Installment, len(plan.Installments))
	copy(installments, plan.Installments)
	sort.SliceStable(installments, func(i, j int) bool {
		return DaysBetween(installments[j].DueDate, installments[i].DueDate) < 0
	})

	for _, inst := range installments {
		days := DaysBetween(inst.DueDate, today)
		if days <= 0 {
			continue
		}
		settled := true
		for _, h := range plan.Heads {
			if inst.covers(h.ID) && !paid[h.ID] {
				settled = false
				break
			}
		}
		if settled {
			continue
		}
		return Fine{
			Installment: inst.Number,
			DaysOverdue: days,
			PerDay:      inst.FinePerDay,
			Amount:      inst.FinePerDay.Mul(decimal.NewFromInt(int64(days))).Round(2),
		}
	}
	return Fine{Amount: decimal.Zero, PerDay: decimal.Zero}
}

// ComputeBreakdown totals the selected heads of plan plus fine. Unknown IDs are ignored.
func ComputeBreakdown(plan Plan, selected Selection, fine decimal.Decimal) Breakdown {
	b := Breakdown{Subtotal: decimal.Zero, Tax: decimal.Zero, Fine: fine}
	for _, h := range plan.Heads {
		if !selected.Has(h.ID) {
			continue
		}
		payable := h.Payable()
		b.Subtotal = b.Subtotal.Add(h.Amount)
		b.Tax = b.Tax.Add(payable.Sub(h.Amount))
	}
	b.Total = b.Subtotal.Add(b.Tax).Add(fine)
	return b
}
