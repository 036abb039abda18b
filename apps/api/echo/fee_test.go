package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/core/user"
	"github.com/kannanru/studentfee/services/checkout"
	"github.com/kannanru/studentfee/tests"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type feeFixture struct {
	*fixture
	std          student.Student
	plan         fee.Plan
	tuition      fee.Head
	library      fee.Head
	adminToken   string
	collectToken string
	teacherToken string
}

func setupFees(t *testing.T) *feeFixture {
	t.Helper()
	f := &feeFixture{fixture: setup(t)}

	_, f.adminToken = f.createUser(t, "admin", user.RoleAdmin)
	_, f.collectToken = f.createUser(t, "accounts", user.RoleAccountant)
	_, f.teacherToken = f.createUser(t, "teacher", user.RoleTeacher)

	f.std = testutil.CreateStudent(t, f.stdRepo, "cs001", "Asha Rao", "BSc CS", 1, true)
	testutil.CreateStudent(t, f.stdRepo, "me001", "Chitra Nair", "BE Mech", 1, true)

	var err error
	f.plan, err = f.feeSvc.CreatePlan(context.Background(), fee.NewPlan{
		Name: "BSc CS Year 1", Program: "BSc CS", Year: 1,
		Heads: []fee.NewHead{
			{Name: "Tuition", Amount: d("1000")},
			{Name: "Library", Amount: d("200"), TaxPercent: d("18")},
		},
		Installments: []fee.NewInstallment{
			{DueDate: now.AddDate(0, 0, -10), FinePerDay: d("50"), Heads: []string{"Tuition"}},
			{DueDate: now.AddDate(0, 1, 0), FinePerDay: d("20"), Heads: []string{"Library"}},
		},
	})
	require.NoError(t, err)
	f.tuition, f.library = f.plan.Heads[0], f.plan.Heads[1]
	return f
}

func (f *feeFixture) payment(mode fee.Mode, total string, gw *fee.GatewayRef, heads ...fee.Head) fee.NewPayment {
	np := fee.NewPayment{StudentID: f.std.ID, PlanID: f.plan.ID, Total: d(total), Mode: mode, Gateway: gw}
	for _, h := range heads {
		np.HeadIDs = append(np.HeadIDs, h.ID)
	}
	return np
}

func Test_feeApi_plans(t *testing.T) {
	f := setupFees(t)

	newPlan := fee.NewPlan{
		Name: "BE Mech Year 1", Program: "BE Mech", Year: 1,
		Heads: []fee.NewHead{{Name: "Tuition", Amount: d("900")}},
	}

	runHTTPTests(t, f.app, []httpTest{
		{name: "Auth required", path: "/v1/plans", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "list", path: "/v1/plans", token: f.collectToken, wantData: marchallList(t, f.plan)},
		{name: "list by program", path: "/v1/plans?program=BE+Mech", token: f.collectToken, wantData: marchallList(t)},
		{name: "retrieve", path: "/v1/plans/" + f.plan.ID, token: f.collectToken, wantData: marchallObj(t, f.plan)},
		{
			name: "retrieve unknown", path: "/v1/plans/nope", token: f.collectToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: fee.ErrPlanNotFound.Error()}),
		},
		{
			name: "create requires admin", method: http.MethodPost, path: "/v1/plans", token: f.collectToken, body: marchallObj(t, newPlan),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "create: duplicate heads", method: http.MethodPost, path: "/v1/plans", token: f.adminToken,
			body: marchallObj(t, fee.NewPlan{
				Name: "Dup", Program: "BE Mech", Year: 1,
				Heads: []fee.NewHead{{Name: "Tuition", Amount: d("1")}, {Name: "Tuition", Amount: d("2")}},
			}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"heads": `duplicate fee head "Tuition"`}),
		},
		{name: "create", method: http.MethodPost, path: "/v1/plans", token: f.adminToken, body: marchallObj(t, newPlan), wantCode: http.StatusCreated},
	})
}

func Test_feeApi_studentPlans(t *testing.T) {
	f := setupFees(t)

	t.Run("plans for student", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.std.ID+"/plans", f.collectToken)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, f.plan)}, rec)
	})

	t.Run("collector only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.std.ID+"/plans", f.teacherToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("heads with status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.std.ID+"/plans/"+f.plan.ID+"/heads", f.collectToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var stmt fee.Statement
		decode(t, rec, &stmt)
		require.Len(t, stmt.Heads, 2)
		assert.False(t, stmt.Heads[0].Paid)
		assert.True(t, d("236").Equal(stmt.Heads[1].Payable))
		assert.Equal(t, 10, stmt.Fine.DaysOverdue)
		assert.True(t, d("500").Equal(stmt.Fine.Amount), stmt.Fine.Amount.String())
	})

	t.Run("plan of another program", func(t *testing.T) {
		other := testutil.CreateStudent(t, f.stdRepo, "cs201", "Bala Iyer", "BSc CS", 2, true)
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+other.ID+"/plans/"+f.plan.ID+"/heads", f.collectToken)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"plan_id": fee.ErrPlanNotApplicable.Error()}),
		}, rec)
	})
}

func Test_feeApi_cashPayment(t *testing.T) {
	f := setupFees(t)

	runHTTPTests(t, f.app, []httpTest{
		{
			name: "collector only", method: http.MethodPost, path: "/v1/payments", token: f.teacherToken,
			body:     marchallObj(t, f.payment(fee.ModeCash, "1500", nil, f.tuition)),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "empty selection", method: http.MethodPost, path: "/v1/payments", token: f.collectToken,
			body:     marchallObj(t, f.payment(fee.ModeCash, "1500", nil)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"head_ids": "this field is required"}),
		},
		{
			name: "total without fine", method: http.MethodPost, path: "/v1/payments", token: f.collectToken,
			body:     marchallObj(t, f.payment(fee.ModeCash, "1000", nil, f.tuition)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"total": "total 1000.00 does not match the amount due 1500.00"}),
		},
		{
			name: "cash with gateway refs", method: http.MethodPost, path: "/v1/payments", token: f.collectToken,
			body:     marchallObj(t, f.payment(fee.ModeCash, "1500", &fee.GatewayRef{OrderID: "o", PaymentID: "p", Signature: "s"}, f.tuition)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"gateway": "cash payments cannot carry gateway references"}),
		},
	})

	var pmt fee.Payment
	t.Run("recorded", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments", f.collectToken, marchallObj(t, f.payment(fee.ModeCash, "1500", nil, f.tuition)))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		decode(t, rec, &pmt)
		assert.True(t, d("1500").Equal(pmt.Total))
		assert.True(t, d("500").Equal(pmt.Fine))
		assert.Equal(t, fee.ModeCash, pmt.Mode)
		assert.Regexp(t, `^RCPT-20261018-[0-9A-F]{8}$`, pmt.ReceiptNo)
	})

	t.Run("already paid", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments", f.collectToken, marchallObj(t, f.payment(fee.ModeCash, "1000", nil, f.tuition)))
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"head_ids": "Tuition: " + fee.ErrHeadAlreadyPaid.Error()}),
		}, rec)
	})

	t.Run("refreshed paid flags", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.std.ID+"/plans/"+f.plan.ID+"/heads", f.collectToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var stmt fee.Statement
		decode(t, rec, &stmt)
		assert.True(t, stmt.Heads[0].Paid)
		assert.Equal(t, pmt.ID, stmt.Heads[0].PaymentID)
		assert.False(t, stmt.Heads[1].Paid)
		assert.True(t, stmt.Fine.Amount.IsZero())
	})

	t.Run("payments of student", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments?student="+f.std.ID, f.collectToken)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, pmt)}, rec)
	})

	t.Run("summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fees/summary", f.teacherToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var sum fee.Summary
		decode(t, rec, &sum)
		assert.Equal(t, 1, sum.PaymentsToday)
		assert.True(t, d("1500").Equal(sum.CollectedToday))
		assert.True(t, d("500").Equal(sum.FinesThisMonth))
		// library (200 + 18% tax) is still due; the BE Mech student has no plan
		assert.True(t, d("236").Equal(sum.Outstanding), sum.Outstanding.String())
	})

	t.Run("receipt emailed", func(t *testing.T) {
		// the student has no guardian email
		assert.Empty(t, f.mailSvc.SentMessages())
	})
}

func Test_feeApi_onlinePayment(t *testing.T) {
	f := setupFees(t)
	secret := []byte(f.conf.Checkout.KeySecret)

	var order fee.Order
	t.Run("create order", func(t *testing.T) {
		body := marchallObj(t, fee.NewOrder{StudentID: f.std.ID, PlanID: f.plan.ID, Amount: d("1500")})
		req, rec := newAuthRequest(http.MethodPost, "/v1/checkout/orders", f.collectToken, body)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		decode(t, rec, &order)
		assert.Regexp(t, `^order_[0-9a-f]{32}$`, order.ID)
		assert.Equal(t, fee.OrderCreated, order.Status)
		assert.Equal(t, "INR", order.Currency)
		assert.Equal(t, "cs001", order.Notes["student"])
	})

	runHTTPTests(t, f.app, []httpTest{
		{
			name: "checkout config", path: "/v1/checkout/config", token: f.collectToken,
			wantData: []byte(`{"key_id":"` + f.conf.Checkout.KeyID + `"}`),
		},
		{
			name: "bad signature", method: http.MethodPost, path: "/v1/checkout/verify", token: f.collectToken,
			body:     marchallObj(t, fee.Verification{OrderID: order.ID, PaymentID: "pay_1", Signature: "deadbeef"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"signature": fee.ErrInvalidSignature.Error()}),
		},
		{
			name: "unverified order", method: http.MethodPost, path: "/v1/payments", token: f.collectToken,
			body: marchallObj(t, f.payment(fee.ModeOnline, "1500", &fee.GatewayRef{
				OrderID: order.ID, PaymentID: "pay_1", Signature: checkout.Sign(secret, order.ID, "pay_1"),
			}, f.tuition)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"gateway": fee.ErrOrderNotVerified.Error()}),
		},
	})

	gw := fee.GatewayRef{OrderID: order.ID, PaymentID: "pay_1", Signature: checkout.Sign(secret, order.ID, "pay_1")}
	t.Run("verify", func(t *testing.T) {
		body := marchallObj(t, fee.Verification{OrderID: gw.OrderID, PaymentID: gw.PaymentID, Signature: gw.Signature})
		req, rec := newAuthRequest(http.MethodPost, "/v1/checkout/verify", f.collectToken, body)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var verified fee.Order
		decode(t, rec, &verified)
		assert.Equal(t, fee.OrderVerified, verified.Status)
		assert.Equal(t, "pay_1", verified.GatewayPaymentID)
	})

	t.Run("submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments", f.collectToken, marchallObj(t, f.payment(fee.ModeOnline, "1500", &gw, f.tuition)))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var pmt fee.Payment
		decode(t, rec, &pmt)
		assert.Equal(t, fee.ModeOnline, pmt.Mode)
		require.NotNil(t, pmt.Gateway)
		assert.Equal(t, order.ID, pmt.Gateway.OrderID)
	})

	t.Run("order cannot be reused", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/checkout/verify", f.collectToken,
			marchallObj(t, fee.Verification{OrderID: gw.OrderID, PaymentID: "pay_2", Signature: checkout.Sign(secret, order.ID, "pay_2")}))
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"order_id": "checkout order was already processed"}),
		}, rec)
	})
}
