package fee

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/event"
	"github.com/kannanru/studentfee/core/student"
)

var (
	// errors
	ErrPlanNotFound      = errors.New("fee plan not found")
	ErrOrderNotFound     = errors.New("checkout order not found")
	ErrPlanNotApplicable = errors.New("this fee plan does not apply to the student")
	ErrHeadAlreadyPaid   = errors.New("fee head has already been paid")
	ErrOrderNotVerified  = errors.New("checkout order is not verified or was already used")
	ErrInvalidSignature  = errors.New("payment signature verification failed")
)

const receiptTemplate = "payment_receipt"

type (
	Repository interface {
		CreatePlan(ctx context.Context, plan Plan) (Plan, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		QueryPlans(ctx context.Context, filter PlanFilter) ([]Plan, error)

		// CreatePayment stores pmt. For online payments, its verified order is consumed in the same transaction.
		// Fails with ErrHeadAlreadyPaid if the student already paid one of its heads, or ErrOrderNotVerified.
		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		QueryPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
		// PaidHeads returns {head ID: payment ID} for the heads of plan paid by the student.
		PaidHeads(ctx context.Context, studentID, planID string) (map[string]string, error)
		PaymentTotals(ctx context.Context, from, to time.Time) (Totals, error)

		CreateOrder(ctx context.Context, order Order) (Order, error)
		GetOrder(ctx context.Context, id string) (Order, error)
		UpdateOrder(ctx context.Context, order Order) (Order, error)
	}

	// Checkout is the payment vendor's server-side API.
	Checkout interface {
		CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (string, error)
		VerifySignature(orderID, paymentID, signature string) error
	}

	StudentFinder interface {
		GetByID(ctx context.Context, id string) (student.Student, error)
		Query(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error)
	}

	Service struct {
		repo     Repository
		students StudentFinder
		checkout Checkout
		mailSvc  core.EmailService
		bus      event.Publisher
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	students StudentFinder,
	checkout Checkout,
	mailSvc core.EmailService,
	bus event.Publisher,
	conf *core.Config,
) *Service {
	if bus == nil {
		bus = event.Discard
	}
	return &Service{
		repo:     repo,
		students: students,
		checkout: checkout,
		mailSvc:  mailSvc,
		bus:      bus,
		conf:     conf,
	}
}

func (svc *Service) today() time.Time {
	return core.Today(svc.conf.Fees.Location())
}

func (svc *Service) CreatePlan(ctx context.Context, np NewPlan) (Plan, error) {
	plan := Plan{
		ID:        uuid.NewString(),
		Name:      np.Name,
		Program:   np.Program,
		Year:      np.Year,
		Quota:     np.Quota,
		Currency:  strings.ToUpper(np.Currency),
		CreatedAt: core.NowFunc(),
	}
	if plan.Currency == "" {
		plan.Currency = svc.conf.Checkout.Currency
	}

	byName := make(map[string]string, len(np.Heads))
	for _, nh := range np.Heads {
		h := Head{ID: uuid.NewString(), Name: nh.Name, Amount: nh.Amount.Round(2), TaxPercent: nh.TaxPercent}
		byName[h.Name] = h.ID
		plan.Heads = append(plan.Heads, h)
	}

	insts := make([]NewInstallment, len(np.Installments))
	copy(insts, np.Installments)
	sort.SliceStable(insts, func(i, j int) bool { return insts[i].DueDate.Before(insts[j].DueDate) })
	for i, ni := range insts {
		inst := Installment{
			Number:     i + 1,
			DueDate:    time.Date(ni.DueDate.Year(), ni.DueDate.Month(), ni.DueDate.Day(), 0, 0, 0, 0, time.UTC),
			FinePerDay: ni.FinePerDay,
			HeadIDs:    []string{},
		}
		for _, name := range ni.Heads {
			inst.HeadIDs = append(inst.HeadIDs, byName[core.CleanString(name)])
		}
		plan.Installments = append(plan.Installments, inst)
	}
	return svc.repo.CreatePlan(ctx, plan)
}

func (svc *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, id)
}

func (svc *Service) QueryPlans(ctx context.Context, filter PlanFilter) ([]Plan, error) {
	filter.Program = core.CleanString(filter.Program)
	return svc.repo.QueryPlans(ctx, filter)
}

// PlansForStudent returns the plans billed to the student (program, year and quota).
func (svc *Service) PlansForStudent(ctx context.Context, studentID string) ([]Plan, error) {
	std, err := svc.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	plans, err := svc.repo.QueryPlans(ctx, PlanFilter{Program: std.Program, Year: std.Year})
	if err != nil {
		return nil, err
	}
	res := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.AppliesTo(std) {
			res = append(res, p)
		}
	}
	return res, nil
}

func (svc *Service) loadPlan(ctx context.Context, studentID, planID string) (student.Student, Plan, error) {
	std, err := svc.students.GetByID(ctx, studentID)
	if err != nil {
		return student.Student{}, Plan{}, err
	}
	plan, err := svc.repo.GetPlan(ctx, planID)
	if err != nil {
		return student.Student{}, Plan{}, err
	}
	if !plan.AppliesTo(std) {
		return student.Student{}, Plan{}, core.NewFieldValidationError("plan_id", ErrPlanNotApplicable)
	}
	return std, plan, nil
}

func (svc *Service) statuses(ctx context.Context, studentID string, plan Plan) ([]HeadStatus, error) {
	paid, err := svc.repo.PaidHeads(ctx, studentID, plan.ID)
	if err != nil {
		return nil, err
	}
	res := make([]HeadStatus, 0, len(plan.Heads))
	for _, h := range plan.Heads {
		pmtID, ok := paid[h.ID]
		res = append(res, HeadStatus{Head: h, Payable: h.Payable(), Paid: ok, PaymentID: pmtID})
	}
	return res, nil
}

// HeadsWithStatus returns the plan's heads with their paid flags for the student and the fine due today.
func (svc *Service) HeadsWithStatus(ctx context.Context, studentID, planID string) (Statement, error) {
	_, plan, err := svc.loadPlan(ctx, studentID, planID)
	if err != nil {
		return Statement{}, err
	}
	heads, err := svc.statuses(ctx, studentID, plan)
	if err != nil {
		return Statement{}, err
	}
	today := svc.today()
	return Statement{
		StudentID: studentID,
		Plan:      plan,
		Heads:     heads,
		Fine:      ComputeFine(plan, heads, today),
		AsOf:      today,
	}, nil
}

// RecordPayment recomputes the payment from the stored plan and paid flags, and stores it if the
// submitted total matches. Online payments must reference a verified order for the same amount.
func (svc *Service) RecordPayment(ctx context.Context, np NewPayment, recordedBy string) (Payment, error) {
	std, plan, err := svc.loadPlan(ctx, np.StudentID, np.PlanID)
	if err != nil {
		return Payment{}, err
	}
	heads, err := svc.statuses(ctx, std.ID, plan)
	if err != nil {
		return Payment{}, err
	}

	status := make(map[string]HeadStatus, len(heads))
	for _, hs := range heads {
		status[hs.ID] = hs
	}
	selection := NewSelection(np.HeadIDs...)
	items := make([]Item, 0, selection.Len())
	for _, id := range selection.IDs() {
		hs, ok := status[id]
		if !ok {
			return Payment{}, core.NewFieldValidationError("head_ids", errors.Errorf("unknown fee head %q", id))
		}
		if hs.Paid {
			return Payment{}, core.NewFieldValidationError("head_ids", errors.Wrap(ErrHeadAlreadyPaid, hs.Name))
		}
		items = append(items, Item{HeadID: id, Name: hs.Name, Amount: hs.Payable})
	}

	fine := ComputeFine(plan, heads, svc.today())
	breakdown := ComputeBreakdown(plan, selection, fine.Amount)
	if !np.Total.Equal(breakdown.Total) {
		return Payment{}, core.NewFieldValidationError(
			"total", errors.Errorf("total %s does not match the amount due %s", np.Total.StringFixed(2), breakdown.Total.StringFixed(2)),
		)
	}

	if np.Mode == ModeOnline {
		if err = svc.checkOrder(ctx, np, breakdown.Total); err != nil {
			return Payment{}, err
		}
	}

	now := core.NowFunc()
	id := uuid.NewString()
	pmt := Payment{
		ID:         id,
		ReceiptNo:  svc.receiptNo(id, now),
		StudentID:  std.ID,
		PlanID:     plan.ID,
		Items:      items,
		Fine:       fine.Amount,
		Total:      breakdown.Total,
		Mode:       np.Mode,
		Gateway:    np.Gateway,
		RecordedBy: recordedBy,
		PaidAt:     now,
	}
	pmt, err = svc.repo.CreatePayment(ctx, pmt)
	switch errors.Cause(err) {
	case nil:
	case ErrHeadAlreadyPaid:
		return Payment{}, core.NewFieldValidationError("head_ids", ErrHeadAlreadyPaid)
	case ErrOrderNotVerified:
		return Payment{}, core.NewFieldValidationError("gateway", ErrOrderNotVerified)
	default:
		return Payment{}, err
	}

	svc.bus.Publish(event.Event{Type: event.PaymentRecorded, StudentID: std.ID, At: now, Payload: pmt})
	return pmt, nil
}

func (svc *Service) checkOrder(ctx context.Context, np NewPayment, total decimal.Decimal) error {
	order, err := svc.repo.GetOrder(ctx, np.Gateway.OrderID)
	if err != nil {
		if err == ErrOrderNotFound {
			return core.NewFieldValidationError("gateway", err)
		}
		return err
	}
	switch {
	case order.Status != OrderVerified || order.GatewayPaymentID != np.Gateway.PaymentID:
		return core.NewFieldValidationError("gateway", ErrOrderNotVerified)
	case order.StudentID != np.StudentID || order.PlanID != np.PlanID:
		return core.NewFieldValidationError("gateway", errors.New("checkout order belongs to another student or plan"))
	case !order.Amount.Equal(total):
		return core.NewFieldValidationError(
			"gateway", errors.Errorf("checkout order amount %s does not match the amount due %s", order.Amount.StringFixed(2), total.StringFixed(2)),
		)
	}
	return nil
}

func (svc *Service) receiptNo(paymentID string, at time.Time) string {
	prefix := svc.conf.Fees.ReceiptPrefix
	if prefix == "" {
		prefix = "RCPT"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(paymentID, "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.In(svc.conf.Fees.Location()).Format("20060102"), suffix)
}

// ReceiptData is the template data of a payment receipt email.
type ReceiptData struct {
	Student student.Student
	Plan    Plan
	Payment Payment
	PaidAt  string
}

// SendReceipt handles event.PaymentRecorded by e-mailing the receipt to the student's guardian.
func (svc *Service) SendReceipt(evt event.Event) error {
	pmt, ok := evt.Payload.(Payment)
	if !ok || svc.mailSvc == nil {
		return nil
	}
	ctx := context.Background()
	std, err := svc.students.GetByID(ctx, pmt.StudentID)
	if err != nil {
		return errors.Wrapf(err, "loading student of receipt %s", pmt.ReceiptNo)
	}
	if std.GuardianEmail == "" {
		return nil
	}
	plan, err := svc.repo.GetPlan(ctx, pmt.PlanID)
	if err != nil {
		return errors.Wrapf(err, "loading plan of receipt %s", pmt.ReceiptNo)
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: std.GuardianName, Address: std.GuardianEmail}},
		Subject:      "Payment receipt " + pmt.ReceiptNo,
		TemplateName: receiptTemplate,
		TemplateData: ReceiptData{
			Student: std,
			Plan:    plan,
			Payment: pmt,
			PaidAt:  pmt.PaidAt.In(svc.conf.Fees.Location()).Format("02 Jan 2006 15:04"),
		},
	})
	return nil
}

func (svc *Service) QueryPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter)
}

// CreateOrder opens a checkout order with the payment vendor for the amount due.
func (svc *Service) CreateOrder(ctx context.Context, no NewOrder) (Order, error) {
	std, plan, err := svc.loadPlan(ctx, no.StudentID, no.PlanID)
	if err != nil {
		return Order{}, err
	}
	currency := strings.ToUpper(no.Currency)
	if currency == "" {
		currency = plan.Currency
	}
	if currency == "" {
		currency = svc.conf.Checkout.Currency
	}

	notes := map[string]string{"student": std.RollNo, "plan": plan.Name}
	for k, v := range no.Notes {
		notes[k] = v
	}
	now := core.NowFunc()
	receipt := fmt.Sprintf("%s-%d", std.RollNo, now.Unix())
	orderID, err := svc.checkout.CreateOrder(ctx, no.Amount.Round(2), currency, receipt, notes)
	if err != nil {
		return Order{}, errors.Wrap(err, "creating checkout order")
	}
	return svc.repo.CreateOrder(ctx, Order{
		ID:        orderID,
		StudentID: std.ID,
		PlanID:    plan.ID,
		Amount:    no.Amount.Round(2),
		Currency:  currency,
		Receipt:   receipt,
		Notes:     notes,
		Status:    OrderCreated,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// VerifyPayment authenticates the vendor's checkout callback and marks the order verified.
// Verifying an already verified order with the same payment is a no-op.
func (svc *Service) VerifyPayment(ctx context.Context, v Verification) (Order, error) {
	order, err := svc.repo.GetOrder(ctx, v.OrderID)
	if err != nil {
		if err == ErrOrderNotFound {
			return Order{}, core.NewFieldValidationError("order_id", err)
		}
		return Order{}, err
	}
	if err = svc.checkout.VerifySignature(v.OrderID, v.PaymentID, v.Signature); err != nil {
		return Order{}, core.NewFieldValidationError("signature", ErrInvalidSignature)
	}

	switch order.Status {
	case OrderCreated:
	case OrderVerified:
		if order.GatewayPaymentID == v.PaymentID {
			return order, nil
		}
		fallthrough
	default:
		return Order{}, core.NewFieldValidationError("order_id", errors.New("checkout order was already processed"))
	}

	order.Status = OrderVerified
	order.GatewayPaymentID = v.PaymentID
	order.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateOrder(ctx, order)
}

// Summary returns today's and this month's collections.
func (svc *Service) Summary(ctx context.Context) (Summary, error) {
	today := svc.today()
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())

	day, err := svc.repo.PaymentTotals(ctx, today.UTC(), tomorrow.UTC())
	if err != nil {
		return Summary{}, err
	}
	month, err := svc.repo.PaymentTotals(ctx, monthStart.UTC(), tomorrow.UTC())
	if err != nil {
		return Summary{}, err
	}
	outstanding, err := svc.outstanding(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		CollectedToday:     day.Total,
		PaymentsToday:      day.Count,
		CollectedThisMonth: month.Total,
		PaymentsThisMonth:  month.Count,
		FinesThisMonth:     month.Fines,
		Outstanding:        outstanding,
	}, nil
}

// outstanding sums the payable of every unpaid head billed to an active student. Fines are not included.
func (svc *Service) outstanding(ctx context.Context) (decimal.Decimal, error) {
	active := true
	stds, err := svc.students.Query(ctx, &student.QueryFilter{IsActive: &active}, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "querying active students")
	}
	plans, err := svc.repo.QueryPlans(ctx, PlanFilter{})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "querying fee plans")
	}

	total := decimal.Zero
	for _, std := range stds {
		for _, plan := range plans {
			if !plan.AppliesTo(std) {
				continue
			}
			paid, err := svc.repo.PaidHeads(ctx, std.ID, plan.ID)
			if err != nil {
				return decimal.Zero, err
			}
			for _, h := range plan.Heads {
				if _, ok := paid[h.ID]; !ok {
					total = total.Add(h.Payable())
				}
			}
		}
	}
	return total, nil
}
