package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/client/gateway"
	"github.com/kannanru/studentfee/client/services"
	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/user"
	"github.com/kannanru/studentfee/services/checkout"
	"github.com/kannanru/studentfee/tests"
)

var now = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

func TestServices(t *testing.T) {
	backend := testutil.StartBackend(t, now)
	sc := backend.SeedFees(t)
	testutil.CreateUser(t, backend.Users, "Accounts", "accounts", "accounts@test.in", "LolC@t123", []string{user.RoleAccountant}, true)
	teacherToken := backend.Token(t, "teacher", user.RoleTeacher)

	ctx := context.Background()
	tokens := gateway.NewMemoryTokenStore("")
	svc := services.New(gateway.NewClient(backend.URL, tokens))

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := svc.Students.List(ctx, services.StudentQuery{})
		assert.Equal(t, gateway.ErrUnauthorized, err)
	})

	t.Run("login", func(t *testing.T) {
		_, err := svc.Auth.Login(ctx, "accounts", "nope")
		assert.EqualError(t, err, "authentication failed")

		usr, err := svc.Auth.Login(ctx, "accounts", "LolC@t123")
		require.NoError(t, err)
		assert.Equal(t, "accounts", usr.Username)
		token, _ := tokens.Token()
		assert.NotEmpty(t, token)

		me, err := svc.Auth.Me(ctx)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, me.ID)
	})

	t.Run("students", func(t *testing.T) {
		stds, err := svc.Students.List(ctx, services.StudentQuery{Search: "asha", Year: 1, Ordering: "name"})
		require.NoError(t, err)
		require.Len(t, stds, 1)
		assert.Equal(t, sc.Student.ID, stds[0].ID)

		std, err := svc.Students.Get(ctx, sc.Student.ID)
		require.NoError(t, err)
		assert.Equal(t, "Asha Rao", std.Name)

		_, err = svc.Students.Get(ctx, "nope")
		var gwErr *gateway.Error
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, 404, gwErr.Status)

		sum, err := svc.Students.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Total)
	})

	t.Run("cash payment", func(t *testing.T) {
		plans, err := svc.Fees.PlansForStudent(ctx, sc.Student.ID)
		require.NoError(t, err)
		require.Len(t, plans, 1)

		stmt, err := svc.Fees.HeadsWithStatus(ctx, sc.Student.ID, sc.Plan.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(500).Equal(stmt.Fine.Amount), stmt.Fine.Amount.String())

		pmt, err := svc.Fees.SubmitPayment(ctx, fee.NewPayment{
			StudentID: sc.Student.ID, PlanID: sc.Plan.ID, HeadIDs: []string{sc.Tuition.ID},
			Fine: stmt.Fine.Amount, Total: decimal.NewFromInt(1500), Mode: fee.ModeCash,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, pmt.ReceiptNo)

		pmts, err := svc.Fees.Payments(ctx, sc.Student.ID)
		require.NoError(t, err)
		require.Len(t, pmts, 1)
		assert.Equal(t, pmt.ID, pmts[0].ID)

		sum, err := svc.Fees.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.PaymentsToday)
	})

	t.Run("online payment", func(t *testing.T) {
		key, err := svc.Fees.CheckoutKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, backend.Conf.Checkout.KeyID, key)

		total := sc.Library.Payable()
		order, err := svc.Fees.CreateOrder(ctx, fee.NewOrder{StudentID: sc.Student.ID, PlanID: sc.Plan.ID, Amount: total})
		require.NoError(t, err)

		sig := checkout.Sign([]byte(backend.Conf.Checkout.KeySecret), order.ID, "pay_1")
		verified, err := svc.Fees.VerifyPayment(ctx, fee.Verification{OrderID: order.ID, PaymentID: "pay_1", Signature: sig})
		require.NoError(t, err)
		assert.Equal(t, fee.OrderVerified, verified.Status)

		_, err = svc.Fees.SubmitPayment(ctx, fee.NewPayment{
			StudentID: sc.Student.ID, PlanID: sc.Plan.ID, HeadIDs: []string{sc.Library.ID},
			Total: total, Mode: fee.ModeOnline, Gateway: &fee.GatewayRef{OrderID: order.ID, PaymentID: "pay_1", Signature: sig},
		})
		require.NoError(t, err)
	})

	t.Run("attendance", func(t *testing.T) {
		_, err := svc.Attendance.Mark(ctx, attendance.NewMarks{Marks: []attendance.Mark{{StudentID: sc.Student.ID, Status: attendance.Present}}})
		var gwErr *gateway.Error
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, 403, gwErr.Status)

		teacher := services.New(gateway.NewClient(backend.URL, gateway.NewMemoryTokenStore(teacherToken)))
		recs, err := teacher.Attendance.Mark(ctx, attendance.NewMarks{Marks: []attendance.Mark{{StudentID: sc.Student.ID, Status: attendance.Late}}})
		require.NoError(t, err)
		require.Len(t, recs, 1)

		recs, err = svc.Attendance.ListByDate(ctx, now)
		require.NoError(t, err)
		assert.Len(t, recs, 1)

		sum, err := svc.Attendance.Summary(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Late)
	})

	t.Run("logout", func(t *testing.T) {
		require.NoError(t, svc.Auth.Logout())
		token, _ := tokens.Token()
		assert.Empty(t, token)
	})
}
