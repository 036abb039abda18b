// Package collection walks an operator through collecting fees from one student:
// select student, select fee plan, select fee heads, then confirm and pay.
package collection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
)

type (
	// Fees is the part of the backend the wizard talks to.
	Fees interface {
		PlansForStudent(ctx context.Context, studentID string) ([]fee.Plan, error)
		HeadsWithStatus(ctx context.Context, studentID, planID string) (fee.Statement, error)
		SubmitPayment(ctx context.Context, np fee.NewPayment) (fee.Payment, error)
		CreateOrder(ctx context.Context, no fee.NewOrder) (fee.Order, error)
		VerifyPayment(ctx context.Context, v fee.Verification) (fee.Order, error)
	}

	// Checkout is the vendor-hosted checkout overlay. Open blocks until the vendor calls back;
	// a closed overlay returns ErrCheckoutCancelled.
	Checkout interface {
		Open(ctx context.Context, order fee.Order) (fee.GatewayRef, error)
	}

	// Journal keeps captured-but-unrecorded payments for support.
	Journal interface {
		Record(ctx context.Context, rec *ReconciliationError) error
	}

	Deps struct {
		Fees     Fees
		Checkout Checkout // required for online payments
		Notifier Notifier
		Journal  Journal     // optional
		Logger   core.Logger // optional

		// Today is the day fines are computed for. Defaults to the backend's statement date.
		Today func() time.Time
	}

	Wizard struct {
		deps   Deps
		stage  Stage
		gen    uint64 // bumped on every stage change; responses issued under an older gen are dropped
		paying bool
		mutex  sync.Mutex
	}
)

func NewWizard(deps Deps) *Wizard {
	if deps.Notifier == nil {
		deps.Notifier = Discard
	}
	return &Wizard{deps: deps, stage: SelectStudent{}}
}

func (w *Wizard) Stage() Stage {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.stage
}

// snapshot returns the current stage and generation.
func (w *Wizard) snapshot() (Stage, uint64) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.stage, w.gen
}

// commit moves to next unless the wizard changed since gen.
func (w *Wizard) commit(gen uint64, next Stage) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if gen != w.gen {
		return ErrStale
	}
	w.set(next)
	return nil
}

// set must be called with the lock held.
func (w *Wizard) set(next Stage) {
	w.stage = next
	w.gen++
}

// fail reports err unless the response is stale. The stage is left untouched.
func (w *Wizard) fail(gen uint64, action string, err error) error {
	w.mutex.Lock()
	stale := gen != w.gen
	w.mutex.Unlock()
	if stale {
		return ErrStale
	}
	w.deps.Notifier.Notify(Notice{Level: LevelError, Message: fmt.Sprintf("%s: %v", action, err), Err: err})
	return err
}

// ChooseStudent loads the fee plans offered to std.
func (w *Wizard) ChooseStudent(ctx context.Context, std student.Student) error {
	stage, gen := w.snapshot()
	if _, ok := stage.(SelectStudent); !ok {
		return ErrWrongStage
	}

	plans, err := w.deps.Fees.PlansForStudent(ctx, std.ID)
	if err != nil {
		return w.fail(gen, "loading fee plans", err)
	}
	return w.commit(gen, SelectPlan{Student: std, Plans: plans})
}

// ChoosePlan loads the plan's heads with their paid flags and computes the fine owed.
func (w *Wizard) ChoosePlan(ctx context.Context, planID string) error {
	stage, gen := w.snapshot()
	sp, ok := stage.(SelectPlan)
	if !ok {
		return ErrWrongStage
	}
	var known bool
	for _, p := range sp.Plans {
		if p.ID == planID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownPlan
	}

	sh, err := w.loadHeads(ctx, sp, planID)
	if err != nil {
		return w.fail(gen, "loading fee heads", err)
	}
	return w.commit(gen, sh)
}

func (w *Wizard) loadHeads(ctx context.Context, sp SelectPlan, planID string) (SelectHeads, error) {
	stmt, err := w.deps.Fees.HeadsWithStatus(ctx, sp.Student.ID, planID)
	if err != nil {
		return SelectHeads{}, err
	}
	return w.headsStage(sp, stmt.Plan, stmt.Heads, stmt.AsOf), nil
}

func (w *Wizard) headsStage(sp SelectPlan, plan fee.Plan, heads []fee.HeadStatus, asOf time.Time) SelectHeads {
	today := asOf
	if w.deps.Today != nil {
		today = w.deps.Today()
	}
	return SelectHeads{
		SelectPlan: sp,
		Plan:       plan,
		Heads:      heads,
		Fine:       fee.ComputeFine(plan, heads, today),
		Selected:   fee.NewSelection(),
	}
}

// Toggle adds or removes a head from the selection. Paid heads cannot be selected.
func (w *Wizard) Toggle(headID string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	sh, ok := w.stage.(SelectHeads)
	if !ok {
		return ErrWrongStage
	}
	hs, ok := sh.head(headID)
	if !ok {
		return ErrUnknownHead
	}
	if hs.Paid && !sh.Selected.Has(headID) {
		return errors.Wrap(ErrHeadPaid, hs.Name)
	}
	sh.Selected = sh.Selected.Toggle(headID)
	w.stage = sh
	return nil
}

// Breakdown returns the totals of the current selection.
func (w *Wizard) Breakdown() (fee.Breakdown, error) {
	switch st := w.Stage().(type) {
	case SelectHeads:
		return st.Breakdown(), nil
	case Confirm:
		return st.SelectHeads.Breakdown(), nil
	}
	return fee.Breakdown{}, ErrWrongStage
}

// Proceed moves to Confirm. An empty selection is rejected before anything is sent.
func (w *Wizard) Proceed() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	sh, ok := w.stage.(SelectHeads)
	if !ok {
		return ErrWrongStage
	}
	if sh.Selected.Len() == 0 {
		return ErrEmptySelection
	}
	w.set(Confirm{SelectHeads: sh, Breakdown: sh.Breakdown()})
	return nil
}

// Back returns to the previous stage. The selection survives going back from Confirm.
func (w *Wizard) Back() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	switch st := w.stage.(type) {
	case Confirm:
		w.set(st.SelectHeads)
	case SelectHeads:
		w.set(st.SelectPlan)
	case SelectPlan:
		w.set(SelectStudent{})
	default:
		return ErrWrongStage
	}
	return nil
}

// Reset drops everything and starts over. Responses still in flight are ignored.
func (w *Wizard) Reset() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.set(SelectStudent{})
}

// Pay submits the confirmed selection. Cash is submitted directly; online payments go through
// the checkout overlay and server verification first.
//
// A failed submission returns to SelectHeads with a refreshed statement, so a retry sends the fine due
// at that time; heads paid meanwhile are dropped from the selection. A successful one returns to
// SelectHeads with refreshed paid flags and an empty selection. Once the vendor has captured the
// money, any failure is a *ReconciliationError.
func (w *Wizard) Pay(ctx context.Context, mode fee.Mode) (fee.Payment, error) {
	w.mutex.Lock()
	conf, ok := w.stage.(Confirm)
	switch {
	case !ok:
		w.mutex.Unlock()
		return fee.Payment{}, ErrWrongStage
	case w.paying:
		w.mutex.Unlock()
		return fee.Payment{}, ErrBusy
	}
	w.paying = true
	gen := w.gen
	w.mutex.Unlock()

	defer func() {
		w.mutex.Lock()
		w.paying = false
		w.mutex.Unlock()
	}()

	sh := conf.SelectHeads
	breakdown := sh.Breakdown()
	np := fee.NewPayment{
		StudentID: sh.Student.ID,
		PlanID:    sh.Plan.ID,
		HeadIDs:   sh.Selected.IDs(),
		Fine:      sh.Fine.Amount,
		Total:     breakdown.Total,
		Mode:      mode,
	}

	switch mode {
	case fee.ModeCash:
	case fee.ModeOnline:
		ref, err := w.checkout(ctx, gen, sh, breakdown.Total)
		if err != nil {
			return fee.Payment{}, err
		}
		np.Gateway = &ref
	default:
		return fee.Payment{}, ErrUnknownMode
	}

	pmt, err := w.deps.Fees.SubmitPayment(ctx, np)
	if err != nil {
		if np.Gateway != nil {
			return fee.Payment{}, w.reconcile(ctx, gen, sh, *np.Gateway, breakdown.Total, "submit", err)
		}
		if ferr := w.fail(gen, "submitting payment", err); ferr == ErrStale {
			return fee.Payment{}, ferr
		}
		_ = w.commit(gen, w.refreshKeepingSelection(ctx, sh))
		return fee.Payment{}, err
	}

	w.paid(ctx, gen, sh, pmt)
	return pmt, nil
}

// refreshKeepingSelection reloads the statement of sh and carries over its selection, minus heads
// that are now paid. sh is returned as is when the statement cannot be loaded.
func (w *Wizard) refreshKeepingSelection(ctx context.Context, sh SelectHeads) SelectHeads {
	next, err := w.loadHeads(ctx, sh.SelectPlan, sh.Plan.ID)
	if err != nil {
		return sh
	}
	for _, id := range sh.Selected.IDs() {
		if hs, ok := next.head(id); ok && !hs.Paid {
			next.Selected = next.Selected.Toggle(id)
		}
	}
	return next
}

// checkout opens a vendor order for amount, waits for the overlay and verifies its callback.
// Failures before the vendor reports success leave the wizard in Confirm.
func (w *Wizard) checkout(ctx context.Context, gen uint64, sh SelectHeads, amount decimal.Decimal) (fee.GatewayRef, error) {
	if w.deps.Checkout == nil {
		return fee.GatewayRef{}, w.fail(gen, "online payment", errors.New("online checkout is not available"))
	}

	names := make([]string, 0, sh.Selected.Len())
	for _, id := range sh.Selected.IDs() {
		if hs, ok := sh.head(id); ok {
			names = append(names, hs.Name)
		}
	}
	order, err := w.deps.Fees.CreateOrder(ctx, fee.NewOrder{
		StudentID: sh.Student.ID,
		PlanID:    sh.Plan.ID,
		Amount:    amount,
		Currency:  sh.Plan.Currency,
		Notes: map[string]string{
			"roll_no": sh.Student.RollNo,
			"student": sh.Student.Name,
			"plan":    sh.Plan.Name,
			"heads":   strings.Join(names, ", "),
		},
	})
	if err != nil {
		return fee.GatewayRef{}, w.fail(gen, "creating checkout order", err)
	}

	ref, err := w.deps.Checkout.Open(ctx, order)
	if err != nil {
		if errors.Is(err, ErrCheckoutCancelled) {
			w.deps.Notifier.Notify(Notice{Level: LevelInfo, Message: "checkout cancelled, nothing was charged", Err: err})
			return fee.GatewayRef{}, err
		}
		return fee.GatewayRef{}, w.fail(gen, "checkout", err)
	}
	if ref.OrderID == "" {
		ref.OrderID = order.ID
	}

	if _, err = w.deps.Fees.VerifyPayment(ctx, fee.Verification{
		OrderID:   ref.OrderID,
		PaymentID: ref.PaymentID,
		Signature: ref.Signature,
	}); err != nil {
		return fee.GatewayRef{}, w.reconcile(ctx, gen, sh, ref, amount, "verify", err)
	}
	return ref, nil
}

// reconcile reports money captured by the vendor that the backend did not record. It is always
// reported, even for a stale wizard; the selection is kept.
func (w *Wizard) reconcile(ctx context.Context, gen uint64, sh SelectHeads, ref fee.GatewayRef, amount decimal.Decimal, step string, err error) error {
	rec := &ReconciliationError{
		OrderID:   ref.OrderID,
		PaymentID: ref.PaymentID,
		Signature: ref.Signature,
		StudentID: sh.Student.ID,
		PlanID:    sh.Plan.ID,
		HeadIDs:   sh.Selected.IDs(),
		Amount:    amount,
		Step:      step,
		Err:       err,
	}

	if w.deps.Logger != nil {
		w.deps.Logger.Error(fmt.Sprintf("payment needs manual reconciliation: %v", rec), rec)
	}
	if w.deps.Journal != nil {
		if jerr := w.deps.Journal.Record(ctx, rec); jerr != nil && w.deps.Logger != nil {
			w.deps.Logger.Error(fmt.Sprintf("recording reconciliation of %s: %v", rec.PaymentID, jerr), jerr)
		}
	}
	w.deps.Notifier.Notify(Notice{Level: LevelError, Message: rec.Error(), Err: rec})

	_ = w.commit(gen, sh)
	return rec
}

// paid moves back to SelectHeads with the selection cleared and the paid flags refreshed.
func (w *Wizard) paid(ctx context.Context, gen uint64, sh SelectHeads, pmt fee.Payment) {
	w.deps.Notifier.Notify(Notice{
		Level:   LevelInfo,
		Message: fmt.Sprintf("payment of %s recorded, receipt %s", pmt.Total.StringFixed(2), pmt.ReceiptNo),
	})

	next, err := w.loadHeads(ctx, sh.SelectPlan, sh.Plan.ID)
	if err != nil {
		w.deps.Notifier.Notify(Notice{Level: LevelWarning, Message: fmt.Sprintf("refreshing fee heads: %v", err), Err: err})

		// mark what was just paid; the backend stays the source of truth
		heads := make([]fee.HeadStatus, len(sh.Heads))
		copy(heads, sh.Heads)
		for i := range heads {
			if sh.Selected.Has(heads[i].ID) {
				heads[i].Paid = true
				heads[i].PaymentID = pmt.ID
			}
		}
		next = w.headsStage(sh.SelectPlan, sh.Plan, heads, pmt.PaidAt)
	}
	_ = w.commit(gen, next)
}
