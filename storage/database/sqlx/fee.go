package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/fee"
)

type (
	planRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Program   string    `db:"program"`
		Year      int       `db:"year"`
		Quota     string    `db:"quota"`
		Currency  string    `db:"currency"`
		CreatedAt time.Time `db:"created_at"`
	}

	headRow struct {
		ID         string          `db:"id"`
		PlanID     string          `db:"plan_id"`
		Position   int             `db:"position"`
		Name       string          `db:"name"`
		Amount     decimal.Decimal `db:"amount"`
		TaxPercent decimal.Decimal `db:"tax_percent"`
	}

	installmentRow struct {
		PlanID     string          `db:"plan_id"`
		Number     int             `db:"number"`
		DueDate    time.Time       `db:"due_date"`
		FinePerDay decimal.Decimal `db:"fine_per_day"`
		HeadIDs    string          `db:"head_ids"`
	}

	paymentRow struct {
		ID               string          `db:"id"`
		ReceiptNo        string          `db:"receipt_no"`
		StudentID        string          `db:"student_id"`
		PlanID           string          `db:"plan_id"`
		Fine             decimal.Decimal `db:"fine"`
		Total            decimal.Decimal `db:"total"`
		Mode             string          `db:"mode"`
		OrderID          null.String     `db:"order_id"`
		GatewayPaymentID null.String     `db:"gateway_payment_id"`
		Signature        null.String     `db:"signature"`
		RecordedBy       string          `db:"recorded_by"`
		PaidAt           time.Time       `db:"paid_at"`
	}

	itemRow struct {
		PaymentID string          `db:"payment_id"`
		StudentID string          `db:"student_id"`
		HeadID    string          `db:"head_id"`
		Name      string          `db:"name"`
		Amount    decimal.Decimal `db:"amount"`
	}

	orderRow struct {
		ID               string          `db:"id"`
		StudentID        string          `db:"student_id"`
		PlanID           string          `db:"plan_id"`
		Amount           decimal.Decimal `db:"amount"`
		Currency         string          `db:"currency"`
		Receipt          string          `db:"receipt"`
		Notes            types.JSONText  `db:"notes"`
		Status           string          `db:"status"`
		GatewayPaymentID null.String     `db:"gateway_payment_id"`
		CreatedAt        time.Time       `db:"created_at"`
		UpdatedAt        time.Time       `db:"updated_at"`
	}
)

const (
	planColumns    = "id, name, program, year, quota, currency, created_at"
	paymentColumns = "id, receipt_no, student_id, plan_id, fine, total, mode, order_id, gateway_payment_id, signature, recorded_by, paid_at"
	orderColumns   = "id, student_id, plan_id, amount, currency, receipt, notes, status, gateway_payment_id, created_at, updated_at"
)

func newPaymentRow(pmt fee.Payment) paymentRow {
	row := paymentRow{
		ID:         pmt.ID,
		ReceiptNo:  pmt.ReceiptNo,
		StudentID:  pmt.StudentID,
		PlanID:     pmt.PlanID,
		Fine:       pmt.Fine,
		Total:      pmt.Total,
		Mode:       string(pmt.Mode),
		RecordedBy: pmt.RecordedBy,
		PaidAt:     pmt.PaidAt,
	}
	if pmt.Gateway != nil {
		row.OrderID = null.StringFrom(pmt.Gateway.OrderID)
		row.GatewayPaymentID = null.StringFrom(pmt.Gateway.PaymentID)
		row.Signature = null.StringFrom(pmt.Gateway.Signature)
	}
	return row
}

func (r paymentRow) toPayment(items []fee.Item) fee.Payment {
	pmt := fee.Payment{
		ID:         r.ID,
		ReceiptNo:  r.ReceiptNo,
		StudentID:  r.StudentID,
		PlanID:     r.PlanID,
		Items:      items,
		Fine:       r.Fine,
		Total:      r.Total,
		Mode:       fee.Mode(r.Mode),
		RecordedBy: r.RecordedBy,
		PaidAt:     r.PaidAt.UTC(),
	}
	if r.OrderID.Valid {
		pmt.Gateway = &fee.GatewayRef{
			OrderID:   r.OrderID.String,
			PaymentID: r.GatewayPaymentID.String,
			Signature: r.Signature.String,
		}
	}
	return pmt
}

func (r orderRow) toOrder() (fee.Order, error) {
	var notes map[string]string
	if len(r.Notes) > 0 {
		if err := r.Notes.Unmarshal(&notes); err != nil {
			return fee.Order{}, errors.Wrap(err, "decoding order notes")
		}
	}
	return fee.Order{
		ID:               r.ID,
		StudentID:        r.StudentID,
		PlanID:           r.PlanID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Receipt:          r.Receipt,
		Notes:            notes,
		Status:           fee.OrderStatus(r.Status),
		GatewayPaymentID: r.GatewayPaymentID.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

type feeRepository struct {
	db core.DB
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository(db core.DB) fee.Repository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) CreatePlan(ctx context.Context, plan fee.Plan) (fee.Plan, error) {
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		_, err := namedExec(ctx, tx, "INSERT INTO fee_plans ("+planColumns+") VALUES (:id, :name, :program, :year, :quota, :currency, :created_at)", planRow{
			ID:        plan.ID,
			Name:      plan.Name,
			Program:   plan.Program,
			Year:      plan.Year,
			Quota:     plan.Quota,
			Currency:  plan.Currency,
			CreatedAt: plan.CreatedAt,
		})
		if err != nil {
			return errors.Wrap(err, "inserting fee plan")
		}
		for i, h := range plan.Heads {
			_, err = namedExec(ctx, tx, "INSERT INTO fee_heads (id, plan_id, position, name, amount, tax_percent) "+
				"VALUES (:id, :plan_id, :position, :name, :amount, :tax_percent)", headRow{
				ID:         h.ID,
				PlanID:     plan.ID,
				Position:   i,
				Name:       h.Name,
				Amount:     h.Amount,
				TaxPercent: h.TaxPercent,
			})
			if err != nil {
				return errors.Wrap(err, "inserting fee head")
			}
		}
		for _, inst := range plan.Installments {
			_, err = namedExec(ctx, tx, "INSERT INTO fee_installments (plan_id, number, due_date, fine_per_day, head_ids) "+
				"VALUES (:plan_id, :number, :due_date, :fine_per_day, :head_ids)", installmentRow{
				PlanID:     plan.ID,
				Number:     inst.Number,
				DueDate:    inst.DueDate,
				FinePerDay: inst.FinePerDay,
				HeadIDs:    strings.Join(inst.HeadIDs, ","),
			})
			if err != nil {
				return errors.Wrap(err, "inserting fee installment")
			}
		}
		return nil
	})
	if err != nil {
		return fee.Plan{}, err
	}
	return plan, nil
}

func (repo *feeRepository) loadPlan(ctx context.Context, row planRow) (fee.Plan, error) {
	plan := fee.Plan{
		ID:           row.ID,
		Name:         row.Name,
		Program:      row.Program,
		Year:         row.Year,
		Quota:        row.Quota,
		Currency:     row.Currency,
		Heads:        []fee.Head{},
		Installments: []fee.Installment{},
		CreatedAt:    row.CreatedAt.UTC(),
	}

	var heads []headRow
	q := "SELECT id, plan_id, position, name, amount, tax_percent FROM fee_heads WHERE plan_id = $1 ORDER BY position"
	if err := repo.db.SelectContext(ctx, &heads, q, row.ID); err != nil {
		return fee.Plan{}, errors.Wrap(err, "selecting fee heads")
	}
	for _, h := range heads {
		plan.Heads = append(plan.Heads, fee.Head{ID: h.ID, Name: h.Name, Amount: h.Amount, TaxPercent: h.TaxPercent})
	}

	var insts []installmentRow
	q = "SELECT plan_id, number, due_date, fine_per_day, head_ids FROM fee_installments WHERE plan_id = $1 ORDER BY number"
	if err := repo.db.SelectContext(ctx, &insts, q, row.ID); err != nil {
		return fee.Plan{}, errors.Wrap(err, "selecting fee installments")
	}
	for _, inst := range insts {
		plan.Installments = append(plan.Installments, fee.Installment{
			Number:     inst.Number,
			DueDate:    inst.DueDate.UTC(),
			FinePerDay: inst.FinePerDay,
			HeadIDs:    splitList(inst.HeadIDs),
		})
	}
	return plan, nil
}

func (repo *feeRepository) GetPlan(ctx context.Context, id string) (fee.Plan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return fee.Plan{}, fee.ErrPlanNotFound
	}
	var row planRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+planColumns+" FROM fee_plans WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return fee.Plan{}, fee.ErrPlanNotFound
	}
	if err != nil {
		return fee.Plan{}, errors.Wrap(err, "selecting fee plan")
	}
	return repo.loadPlan(ctx, row)
}

func (repo *feeRepository) QueryPlans(ctx context.Context, filter fee.PlanFilter) ([]fee.Plan, error) {
	var w where
	if filter.Program != "" {
		w.add("program = $%d", filter.Program)
	}
	if filter.Year != 0 {
		w.add("year = $%d", filter.Year)
	}
	var rows []planRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT "+planColumns+" FROM fee_plans"+w.String()+" ORDER BY name", w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting fee plans")
	}
	res := make([]fee.Plan, 0, len(rows))
	for _, row := range rows {
		plan, err := repo.loadPlan(ctx, row)
		if err != nil {
			return nil, err
		}
		res = append(res, plan)
	}
	return res, nil
}

func (repo *feeRepository) CreatePayment(ctx context.Context, pmt fee.Payment) (fee.Payment, error) {
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if pmt.Gateway != nil {
			res, err := tx.ExecContext(ctx,
				"UPDATE checkout_orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
				string(fee.OrderConsumed), pmt.PaidAt, pmt.Gateway.OrderID, string(fee.OrderVerified))
			if err != nil {
				return errors.Wrap(err, "consuming checkout order")
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fee.ErrOrderNotVerified
			}
		}

		q := "INSERT INTO payments (" + paymentColumns + ") VALUES (:id, :receipt_no, :student_id, :plan_id, :fine, :total, " +
			":mode, :order_id, :gateway_payment_id, :signature, :recorded_by, :paid_at)"
		if _, err := namedExec(ctx, tx, q, newPaymentRow(pmt)); err != nil {
			return errors.Wrap(err, "inserting payment")
		}
		for _, it := range pmt.Items {
			_, err := namedExec(ctx, tx, "INSERT INTO payment_items (payment_id, student_id, head_id, name, amount) "+
				"VALUES (:payment_id, :student_id, :head_id, :name, :amount)", itemRow{
				PaymentID: pmt.ID,
				StudentID: pmt.StudentID,
				HeadID:    it.HeadID,
				Name:      it.Name,
				Amount:    it.Amount,
			})
			if err != nil {
				if _, ok := uniqueConstraint(err); ok {
					return fee.ErrHeadAlreadyPaid
				}
				return errors.Wrap(err, "inserting payment item")
			}
		}
		return nil
	})
	if err != nil {
		return fee.Payment{}, err
	}
	return pmt, nil
}

func (repo *feeRepository) QueryPayments(ctx context.Context, filter fee.PaymentFilter) ([]fee.Payment, error) {
	var w where
	if filter.StudentID != "" {
		if _, err := uuid.Parse(filter.StudentID); err != nil {
			return []fee.Payment{}, nil
		}
		w.add("student_id = $%d", filter.StudentID)
	}
	if !filter.From.IsZero() {
		w.add("paid_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("paid_at < $%d", filter.To)
	}

	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT "+paymentColumns+" FROM payments"+w.String()+" ORDER BY paid_at DESC", w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	res := make([]fee.Payment, 0, len(rows))
	for _, row := range rows {
		var items []itemRow
		q := "SELECT payment_id, student_id, head_id, name, amount FROM payment_items WHERE payment_id = $1 ORDER BY name"
		if err := repo.db.SelectContext(ctx, &items, q, row.ID); err != nil {
			return nil, errors.Wrap(err, "selecting payment items")
		}
		pmtItems := make([]fee.Item, 0, len(items))
		for _, it := range items {
			pmtItems = append(pmtItems, fee.Item{HeadID: it.HeadID, Name: it.Name, Amount: it.Amount})
		}
		res = append(res, row.toPayment(pmtItems))
	}
	return res, nil
}

func (repo *feeRepository) PaidHeads(ctx context.Context, studentID, planID string) (map[string]string, error) {
	var rows []struct {
		HeadID    string `db:"head_id"`
		PaymentID string `db:"payment_id"`
	}
	q := `SELECT pi.head_id, pi.payment_id FROM payment_items pi
		JOIN payments p ON p.id = pi.payment_id
		WHERE p.student_id = $1 AND p.plan_id = $2`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID, planID); err != nil {
		return nil, errors.Wrap(err, "selecting paid heads")
	}
	paid := make(map[string]string, len(rows))
	for _, r := range rows {
		paid[r.HeadID] = r.PaymentID
	}
	return paid, nil
}

func (repo *feeRepository) PaymentTotals(ctx context.Context, from, to time.Time) (fee.Totals, error) {
	var row struct {
		Count int             `db:"count"`
		Total decimal.Decimal `db:"total"`
		Fines decimal.Decimal `db:"fines"`
	}
	q := "SELECT COUNT(*) AS count, COALESCE(SUM(total), 0) AS total, COALESCE(SUM(fine), 0) AS fines " +
		"FROM payments WHERE paid_at >= $1 AND paid_at < $2"
	if err := repo.db.GetContext(ctx, &row, q, from, to); err != nil {
		return fee.Totals{}, errors.Wrap(err, "summing payments")
	}
	return fee.Totals{Count: row.Count, Total: row.Total, Fines: row.Fines}, nil
}

func (repo *feeRepository) CreateOrder(ctx context.Context, order fee.Order) (fee.Order, error) {
	notes, err := json.Marshal(order.Notes)
	if err != nil {
		return fee.Order{}, errors.Wrap(err, "encoding order notes")
	}
	q := "INSERT INTO checkout_orders (" + orderColumns + ") VALUES (:id, :student_id, :plan_id, :amount, :currency, " +
		":receipt, :notes, :status, :gateway_payment_id, :created_at, :updated_at)"
	_, err = namedExec(ctx, repo.db, q, orderRow{
		ID:               order.ID,
		StudentID:        order.StudentID,
		PlanID:           order.PlanID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		Receipt:          order.Receipt,
		Notes:            types.JSONText(notes),
		Status:           string(order.Status),
		GatewayPaymentID: null.NewString(order.GatewayPaymentID, order.GatewayPaymentID != ""),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	})
	if err != nil {
		return fee.Order{}, errors.Wrap(err, "inserting checkout order")
	}
	return order, nil
}

func (repo *feeRepository) GetOrder(ctx context.Context, id string) (fee.Order, error) {
	var row orderRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+orderColumns+" FROM checkout_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return fee.Order{}, fee.ErrOrderNotFound
	}
	if err != nil {
		return fee.Order{}, errors.Wrap(err, "selecting checkout order")
	}
	return row.toOrder()
}

func (repo *feeRepository) UpdateOrder(ctx context.Context, order fee.Order) (fee.Order, error) {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE checkout_orders SET status = $1, gateway_payment_id = $2, updated_at = $3 WHERE id = $4",
		string(order.Status), null.NewString(order.GatewayPaymentID, order.GatewayPaymentID != ""), order.UpdatedAt, order.ID)
	if err != nil {
		return fee.Order{}, errors.Wrap(err, "updating checkout order")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fee.Order{}, fee.ErrOrderNotFound
	}
	return order, nil
}
