package echoapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"

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
	"github.com/kannanru/studentfee/tests"
)

var (
	now = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type fixture struct {
	app     echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	stdRepo student.Repository
	feeSvc  *fee.Service
	bus     *eventbus.InMemoryBus
	mailSvc *emailsvc.ConsoleService
}

func setup(t *testing.T) *fixture {
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

	// set up DB & repos
	db := inmemdb.Open()
	f := &fixture{
		conf:    conf,
		usrRepo: inmemdb.NewUserRepository(db),
		stdRepo: inmemdb.NewStudentRepository(db),
		bus:     eventbus.NewInMemoryBus(logger),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}

	// set up services
	provider := checkout.NewHMACProvider(conf, logger)
	usrSvc := user.NewService(f.usrRepo)
	stdSvc := student.NewService(f.stdRepo)
	f.feeSvc = fee.NewService(inmemdb.NewFeeRepository(db), stdSvc, provider, f.mailSvc, f.bus, conf)
	f.bus.Subscribe(event.PaymentRecorded, f.feeSvc.SendReceipt)
	attSvc := attendance.NewService(inmemdb.NewAttendanceRepository(db), stdSvc, f.bus, conf)

	// set up server
	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		StudentSvc:     stdSvc,
		FeeSvc:         f.feeSvc,
		AttendanceSvc:  attSvc,
		Events:         f.bus,
		CheckoutKeyID:  provider.KeyID(),
	})
	return f
}

func (f *fixture) createUser(t *testing.T, uname string, roles ...string) (user.User, string) {
	t.Helper()
	usr := testutil.CreateUser(t, f.usrRepo, uname, uname, uname+"@test.in", "LolC@t123", roles, true)
	return usr, f.getToken(t, usr)
}

func (f *fixture) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, app http.Handler, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
