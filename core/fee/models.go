package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/student"
)

var hundred = decimal.NewFromInt(100)

// Head is a single named payable line item of a Plan.
type Head struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	TaxPercent decimal.Decimal `json:"tax_percent"`
}

// Payable returns the tax-inclusive amount of the head, rounded to 2 places.
func (h Head) Payable() decimal.Decimal {
	tax := h.Amount.Mul(h.TaxPercent).Div(hundred)
	return h.Amount.Add(tax).Round(2)
}

// Installment is a due date of a Plan. An installment without heads covers the whole plan.
type Installment struct {
	Number     int             `json:"number"`
	DueDate    time.Time       `json:"due_date"`
	FinePerDay decimal.Decimal `json:"fine_per_day"`
	HeadIDs    []string        `json:"head_ids"`
}

func (inst Installment) covers(headID string) bool {
	if len(inst.HeadIDs) == 0 {
		return true
	}
	for _, id := range inst.HeadIDs {
		if id == headID {
			return true
		}
	}
	return false
}

// Plan is an ordered collection of fee heads plus a due-date schedule, associated with a
// program/year and optionally a quota.
type Plan struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Program      string        `json:"program"`
	Year         int           `json:"year"`
	Quota        string        `json:"quota"`
	Currency     string        `json:"currency"`
	Heads        []Head        `json:"heads"`
	Installments []Installment `json:"installments"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (p Plan) Head(id string) (Head, bool) {
	for _, h := range p.Heads {
		if h.ID == id {
			return h, true
		}
	}
	return Head{}, false
}

// AppliesTo reports whether std is billed by this plan.
func (p Plan) AppliesTo(std student.Student) bool {
	return p.Program == std.Program && p.Year == std.Year && (p.Quota == "" || p.Quota == std.Quota)
}

type PlanFilter struct {
	Program string `query:"program"`
	Year    int    `query:"year"`
}

type NewHead struct {
	Name       string          `json:"name" validate:"required,notblank"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	TaxPercent decimal.Decimal `json:"tax_percent" validate:"gte=0,lte=100"`
}

type NewInstallment struct {
	DueDate    time.Time       `json:"due_date" validate:"required"`
	FinePerDay decimal.Decimal `json:"fine_per_day" validate:"gte=0"`
	Heads      []string        `json:"heads"` // head names; empty means the whole plan
}

// NewPlan contains information needed to create a Plan.
type NewPlan struct {
	Name         string           `json:"name" validate:"required,notblank"`
	Program      string           `json:"program" validate:"required"`
	Year         int              `json:"year" validate:"required,min=1,max=8"`
	Quota        string           `json:"quota"`
	Currency     string           `json:"currency" validate:"omitempty,len=3"`
	Heads        []NewHead        `json:"heads" validate:"required,min=1,dive"`
	Installments []NewInstallment `json:"installments" validate:"dive"`
}

func (np *NewPlan) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Program = core.CleanString(np.Program)
	np.Quota = core.CleanString(np.Quota, true /* lower */)
	for i := range np.Heads {
		np.Heads[i].Name = core.CleanString(np.Heads[i].Name)
	}
	if err := validate.Struct(np); err != nil {
		return err
	}

	names := make(map[string]bool, len(np.Heads))
	for _, h := range np.Heads {
		if names[h.Name] {
			return core.NewFieldValidationError("heads", errors.Errorf("duplicate fee head %q", h.Name))
		}
		names[h.Name] = true
	}
	for _, inst := range np.Installments {
		for _, name := range inst.Heads {
			if !names[core.CleanString(name)] {
				return core.NewFieldValidationError("installments", errors.Errorf("unknown fee head %q", name))
			}
		}
	}
	return nil
}

// HeadStatus is a Head together with its paid flag for one student.
type HeadStatus struct {
	Head
	Payable   decimal.Decimal `json:"payable"`
	Paid      bool            `json:"paid"`
	PaymentID string          `json:"payment_id,omitempty"`
}

// Statement is what a student owes on a plan as of a given day.
type Statement struct {
	StudentID string       `json:"student_id"`
	Plan      Plan         `json:"plan"`
	Heads     []HeadStatus `json:"heads"`
	Fine      Fine         `json:"fine"`
	AsOf      time.Time    `json:"as_of"`
}

type Mode string

const (
	ModeCash   Mode = "cash"
	ModeOnline Mode = "online"
)

type Item struct {
	HeadID string          `json:"head_id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"` // tax inclusive
}

// GatewayRef holds the identifiers returned by the checkout vendor for an online payment.
type GatewayRef struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type Payment struct {
	ID         string          `json:"id"`
	ReceiptNo  string          `json:"receipt_no"`
	StudentID  string          `json:"student_id"`
	PlanID     string          `json:"plan_id"`
	Items      []Item          `json:"items"`
	Fine       decimal.Decimal `json:"fine"`
	Total      decimal.Decimal `json:"total"`
	Mode       Mode            `json:"mode"`
	Gateway    *GatewayRef     `json:"gateway,omitempty"`
	RecordedBy string          `json:"recorded_by"`
	PaidAt     time.Time       `json:"paid_at"` // UTC
}

// NewPayment is the payment record submitted by the collection workflow.
type NewPayment struct {
	StudentID string          `json:"student_id" validate:"required"`
	PlanID    string          `json:"plan_id" validate:"required"`
	HeadIDs   []string        `json:"head_ids" validate:"required,min=1,unique,dive,required"`
	Fine      decimal.Decimal `json:"fine" validate:"gte=0"`
	Total     decimal.Decimal `json:"total" validate:"gt=0"`
	Mode      Mode            `json:"mode" validate:"required,oneof=cash online"`
	Gateway   *GatewayRef     `json:"gateway,omitempty"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	if err := validate.Struct(np); err != nil {
		return err
	}
	if np.Mode == ModeOnline && np.Gateway == nil {
		return core.NewFieldValidationError("gateway", errors.New("gateway references are required for online payments"))
	}
	if np.Mode == ModeCash && np.Gateway != nil {
		return core.NewFieldValidationError("gateway", errors.New("cash payments cannot carry gateway references"))
	}
	return nil
}

type PaymentFilter struct {
	StudentID string    `query:"student"`
	From      time.Time `query:"-"`
	To        time.Time `query:"-"`
}

type OrderStatus string

const (
	OrderCreated  OrderStatus = "created"
	OrderVerified OrderStatus = "verified"
	OrderConsumed OrderStatus = "consumed"
)

// Order is a checkout order opened with the payment vendor.
type Order struct {
	ID               string            `json:"id"`
	StudentID        string            `json:"student_id"`
	PlanID           string            `json:"plan_id"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Receipt          string            `json:"receipt"`
	Notes            map[string]string `json:"notes,omitempty"`
	Status           OrderStatus       `json:"status"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type NewOrder struct {
	StudentID string            `json:"student_id" validate:"required"`
	PlanID    string            `json:"plan_id" validate:"required"`
	Amount    decimal.Decimal   `json:"amount" validate:"gt=0"`
	Currency  string            `json:"currency" validate:"omitempty,len=3"`
	Notes     map[string]string `json:"notes"`
}

// Verification is the vendor's signed checkout callback.
type Verification struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// Summary is the fees panel of the dashboard overview.
type Summary struct {
	CollectedToday     decimal.Decimal `json:"collected_today"`
	PaymentsToday      int             `json:"payments_today"`
	CollectedThisMonth decimal.Decimal `json:"collected_this_month"`
	PaymentsThisMonth  int             `json:"payments_this_month"`
	FinesThisMonth     decimal.Decimal `json:"fines_this_month"`
	// Outstanding is still owed by active students, fines excluded.
	Outstanding decimal.Decimal `json:"outstanding"`
}

// Totals aggregates payments over a period.
type Totals struct {
	Count int
	Total decimal.Decimal
	Fines decimal.Decimal
}
