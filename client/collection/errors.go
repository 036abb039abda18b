package collection

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// errors
	ErrWrongStage        = errors.New("not allowed at this stage")
	ErrStale             = errors.New("the wizard moved on; response ignored")
	ErrBusy              = errors.New("a payment is already in progress")
	ErrEmptySelection    = errors.New("select at least one fee head")
	ErrUnknownPlan       = errors.New("fee plan is not offered to this student")
	ErrUnknownHead       = errors.New("fee head is not part of this plan")
	ErrHeadPaid          = errors.New("fee head has already been paid")
	ErrUnknownMode       = errors.New("unknown payment mode")
	ErrCheckoutCancelled = errors.New("checkout cancelled")
)

// ReconciliationError is returned when the payment vendor captured the money but the backend did
// not record the payment. It is never retried: support reconciles it by hand from PaymentID.
type ReconciliationError struct {
	OrderID   string
	PaymentID string
	Signature string
	StudentID string
	PlanID    string
	HeadIDs   []string
	Amount    decimal.Decimal
	Step      string // "verify" or "submit"
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf(
		"payment %s (order %s, %s) was captured but not recorded; quote it to support: %v",
		e.PaymentID, e.OrderID, e.Amount.StringFixed(2), e.Err,
	)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
