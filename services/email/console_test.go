package emailsvc

import (
	"bytes"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/assets"
	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
)

func TestConsoleService_receipt(t *testing.T) {
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(assets.FS, assets.TemplatesDir, nopLogger{})
	svc := NewConsoleServiceMock(conf, nopLogger{})

	svc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: "Ravi", Address: "ravi@example.com"}},
		Subject:      "Payment receipt RCPT-1",
		TemplateName: "payment_receipt",
		TemplateData: fee.ReceiptData{
			Student: student.Student{Name: "Asha", RollNo: "cs001", GuardianName: "Ravi"},
			Plan:    fee.Plan{Name: "Year 1", Currency: "INR"},
			Payment: fee.Payment{
				ReceiptNo: "RCPT-1",
				Items:     []fee.Item{{Name: "Tuition", Amount: decimal.NewFromInt(1000)}},
				Fine:      decimal.NewFromInt(500),
				Total:     decimal.NewFromInt(1500),
				Mode:      fee.ModeCash,
			},
			PaidAt: time.Date(2026, 10, 18, 11, 30, 0, 0, time.UTC).Format("02 Jan 2006 15:04"),
		},
	})
	// no recipients: dropped
	svc.SendMessages(&core.EmailMessage{Subject: "nobody", BodyStr: "hi"})

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "INR 1500.00")
	assert.Contains(t, sent[0].TextContent, "Tuition: 1000.00")
	assert.Contains(t, sent[0].TextContent, "Late fine: 500.00")
	assert.Contains(t, sent[0].HTMLContent, "<b>INR 1500.00</b>")
}

func TestConsoleService_format(t *testing.T) {
	var out bytes.Buffer
	svc := NewConsoleService(core.NewTestConfig(), log.New(&out, "", 0), nopLogger{})
	svc.sync = true

	svc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: "ravi@example.com"}},
		Subject: "Hello",
		BodyStr: "plain body",
	})
	assert.Contains(t, out.String(), "Subject: [Fees] Hello")
	assert.Contains(t, out.String(), "To: <ravi@example.com>")
	assert.Contains(t, out.String(), "plain body")
	assert.Len(t, svc.SentMessages(), 1)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
