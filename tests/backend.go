package testutil

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/shopspring/decimal"

	"github.com/kannanru/studentfee/apps/api/echo"
	"github.com/kannanru/studentfee/assets"
	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/event"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/core/user"
	"github.com/kannanru/studentfee/services/checkout"
	"github.com/kannanru/studentfee/services/email"
	"github.com/kannanru/studentfee/services/eventbus"
	"github.com/kannanru/studentfee/services/logger"
	"github.com/kannanru/studentfee/storage/database/inmem"
)

// Backend is a fees API served over real HTTP, backed by in-memory storage.
type Backend struct {
	URL        string
	Conf       *core.Config
	Users      user.Repository
	Students   student.Repository
	Fees       *fee.Service
	Attendance *attendance.Service
	Bus        *eventbus.InMemoryBus
	Mail       *emailsvc.ConsoleService
}

// StartBackend serves the API until the test ends. Clocks are frozen at now.
func StartBackend(t *testing.T, now time.Time) *Backend {
	t.Helper()

	origNow, origJWTNow := core.NowFunc, jwt.TimeFunc
	core.NowFunc = func() time.Time { return now }
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() {
		core.NowFunc = origNow
		jwt.TimeFunc = origJWTNow
	})

	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(assets.FS, assets.TemplatesDir, logger)

	db := inmemdb.Open()
	b := &Backend{
		Conf:     conf,
		Users:    inmemdb.NewUserRepository(db),
		Students: inmemdb.NewStudentRepository(db),
		Bus:      eventbus.NewInMemoryBus(logger),
		Mail:     emailsvc.NewConsoleServiceMock(conf, logger),
	}
	provider := checkout.NewHMACProvider(conf, logger)
	stdSvc := student.NewService(b.Students)
	b.Fees = fee.NewService(inmemdb.NewFeeRepository(db), stdSvc, provider, b.Mail, b.Bus, conf)
	b.Bus.Subscribe(event.PaymentRecorded, b.Fees.SendReceipt)
	b.Attendance = attendance.NewService(inmemdb.NewAttendanceRepository(db), stdSvc, b.Bus, conf)

	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        user.NewService(b.Users),
		StudentSvc:     stdSvc,
		FeeSvc:         b.Fees,
		AttendanceSvc:  b.Attendance,
		Events:         b.Bus,
		CheckoutKeyID:  provider.KeyID(),
	})
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

// Token creates an active user (password "LolC@t123") and returns a bearer token for it.
func (b *Backend) Token(t *testing.T, uname string, roles ...string) string {
	t.Helper()
	usr := CreateUser(t, b.Users, uname, uname, uname+"@test.in", "LolC@t123", roles, true)
	token, err := echoapi.GenerateToken(b.Conf, echoapi.GetUserClaims(b.Conf, usr))
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}

// FeeScenario is a student with one plan: Tuition 1000 due 10 days ago at 50 a day, and
// Library 200 + 18% tax due in a month.
type FeeScenario struct {
	Student student.Student
	Plan    fee.Plan
	Tuition fee.Head
	Library fee.Head
}

func (b *Backend) SeedFees(t *testing.T) FeeScenario {
	t.Helper()
	now := core.NowFunc()
	std := CreateStudent(t, b.Students, "cs001", "Asha Rao", "BSc CS", 1, true)

	plan, err := b.Fees.CreatePlan(context.Background(), fee.NewPlan{
		Name: "BSc CS Year 1", Program: "BSc CS", Year: 1,
		Heads: []fee.NewHead{
			{Name: "Tuition", Amount: decimal.NewFromInt(1000)},
			{Name: "Library", Amount: decimal.NewFromInt(200), TaxPercent: decimal.NewFromInt(18)},
		},
		Installments: []fee.NewInstallment{
			{DueDate: now.AddDate(0, 0, -10), FinePerDay: decimal.NewFromInt(50), Heads: []string{"Tuition"}},
			{DueDate: now.AddDate(0, 1, 0), FinePerDay: decimal.NewFromInt(20), Heads: []string{"Library"}},
		},
	})
	if err != nil {
		t.Fatalf("SeedFees() failed: %v", err)
	}
	return FeeScenario{Student: std, Plan: plan, Tuition: plan.Heads[0], Library: plan.Heads[1]}
}
