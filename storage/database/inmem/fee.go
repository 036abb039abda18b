package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/core/fee"
)

type feeRepository struct {
	db *feeTables
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{db: db.fee}
}

func (repo *feeRepository) CreatePlan(_ context.Context, plan fee.Plan) (fee.Plan, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.plans[plan.ID] = &plan
	return plan, nil
}

func (repo *feeRepository) GetPlan(_ context.Context, id string) (fee.Plan, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if plan, ok := repo.db.plans[id]; ok {
		return *plan, nil
	}
	return fee.Plan{}, fee.ErrPlanNotFound
}

func (repo *feeRepository) QueryPlans(_ context.Context, filter fee.PlanFilter) ([]fee.Plan, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]fee.Plan, 0)
	for _, p := range repo.db.plans {
		if filter.Program != "" && p.Program != filter.Program {
			continue
		}
		if filter.Year != 0 && p.Year != filter.Year {
			continue
		}
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (repo *feeRepository) paidHeads(studentID, planID string) map[string]string {
	paid := make(map[string]string)
	for _, pmt := range repo.db.payments {
		if pmt.StudentID != studentID || (planID != "" && pmt.PlanID != planID) {
			continue
		}
		for _, it := range pmt.Items {
			paid[it.HeadID] = pmt.ID
		}
	}
	return paid
}

func (repo *feeRepository) CreatePayment(_ context.Context, pmt fee.Payment) (fee.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	paid := repo.paidHeads(pmt.StudentID, "")
	for _, it := range pmt.Items {
		if _, ok := paid[it.HeadID]; ok {
			return fee.Payment{}, fee.ErrHeadAlreadyPaid
		}
	}

	if pmt.Gateway != nil {
		order, ok := repo.db.orders[pmt.Gateway.OrderID]
		if !ok || order.Status != fee.OrderVerified {
			return fee.Payment{}, fee.ErrOrderNotVerified
		}
		order.Status = fee.OrderConsumed
		order.UpdatedAt = pmt.PaidAt
	}

	repo.db.payments = append(repo.db.payments, &pmt)
	return pmt, nil
}

func (repo *feeRepository) QueryPayments(_ context.Context, filter fee.PaymentFilter) ([]fee.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]fee.Payment, 0)
	for _, pmt := range repo.db.payments {
		if filter.StudentID != "" && pmt.StudentID != filter.StudentID {
			continue
		}
		if !filter.From.IsZero() && pmt.PaidAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !pmt.PaidAt.Before(filter.To) {
			continue
		}
		res = append(res, *pmt)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].PaidAt.After(res[j].PaidAt) })
	return res, nil
}

func (repo *feeRepository) PaidHeads(_ context.Context, studentID, planID string) (map[string]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.paidHeads(studentID, planID), nil
}

func (repo *feeRepository) PaymentTotals(_ context.Context, from, to time.Time) (fee.Totals, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	totals := fee.Totals{Total: decimal.Zero, Fines: decimal.Zero}
	for _, pmt := range repo.db.payments {
		if pmt.PaidAt.Before(from) || !pmt.PaidAt.Before(to) {
			continue
		}
		totals.Count++
		totals.Total = totals.Total.Add(pmt.Total)
		totals.Fines = totals.Fines.Add(pmt.Fine)
	}
	return totals, nil
}

func (repo *feeRepository) CreateOrder(_ context.Context, order fee.Order) (fee.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.orders[order.ID] = &order
	return order, nil
}

func (repo *feeRepository) GetOrder(_ context.Context, id string) (fee.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if order, ok := repo.db.orders[id]; ok {
		return *order, nil
	}
	return fee.Order{}, fee.ErrOrderNotFound
}

func (repo *feeRepository) UpdateOrder(_ context.Context, order fee.Order) (fee.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.orders[order.ID]; !ok {
		return fee.Order{}, fee.ErrOrderNotFound
	}
	repo.db.orders[order.ID] = &order
	return order, nil
}
