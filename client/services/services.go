// Package services wraps the fees backend resources in typed methods over the gateway.
package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/client/gateway"
	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/core/user"
)

const dateLayout = "2006-01-02"

// Services groups every resource of the backend.
type Services struct {
	Auth       *Auth
	Students   *Students
	Fees       *Fees
	Attendance *Attendance
}

func New(c *gateway.Client) *Services {
	return &Services{
		Auth:       &Auth{c: c},
		Students:   &Students{c: c},
		Fees:       &Fees{c: c},
		Attendance: &Attendance{c: c},
	}
}

func dateQuery(date time.Time) url.Values {
	if date.IsZero() {
		return nil
	}
	return url.Values{"date": {date.Format(dateLayout)}}
}

type Auth struct {
	c *gateway.Client
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type session struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// Login stores the issued token; subsequent calls are authenticated with it.
func (a *Auth) Login(ctx context.Context, username, password string) (user.User, error) {
	var sess session
	if err := a.c.Do(ctx, http.MethodPost, "/v1/users/login", nil, credentials{username, password}, &sess); err != nil {
		return user.User{}, err
	}
	if err := a.c.Tokens.SetToken(sess.Token); err != nil {
		return user.User{}, errors.Wrap(err, "storing token")
	}
	if sess.User == nil {
		return user.User{}, nil
	}
	return *sess.User, nil
}

func (a *Auth) Logout() error {
	return a.c.Tokens.Clear()
}

func (a *Auth) Me(ctx context.Context) (user.User, error) {
	var usr user.User
	err := a.c.Do(ctx, http.MethodGet, "/v1/users/me", nil, nil, &usr)
	return usr, err
}

type Students struct {
	c *gateway.Client
}

// StudentQuery filters List; zero values are ignored.
type StudentQuery struct {
	Search   string
	Program  string
	Year     int
	Ordering string // e.g. "name" or "-roll_no"
}

func (q StudentQuery) values() url.Values {
	v := make(url.Values)
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Program != "" {
		v.Set("program", q.Program)
	}
	if q.Year > 0 {
		v.Set("year", strconv.Itoa(q.Year))
	}
	if q.Ordering != "" {
		v.Set("ordering", q.Ordering)
	}
	return v
}

func (s *Students) List(ctx context.Context, q StudentQuery) ([]student.Student, error) {
	var stds []student.Student
	err := s.c.Do(ctx, http.MethodGet, "/v1/students", q.values(), nil, &stds)
	return stds, err
}

func (s *Students) Get(ctx context.Context, id string) (student.Student, error) {
	var std student.Student
	err := s.c.Do(ctx, http.MethodGet, "/v1/students/"+url.PathEscape(id), nil, nil, &std)
	return std, err
}

func (s *Students) Summary(ctx context.Context) (student.Summary, error) {
	var sum student.Summary
	err := s.c.Do(ctx, http.MethodGet, "/v1/students/summary", nil, nil, &sum)
	return sum, err
}

type Fees struct {
	c *gateway.Client
}

func (f *Fees) PlansForStudent(ctx context.Context, studentID string) ([]fee.Plan, error) {
	var plans []fee.Plan
	err := f.c.Do(ctx, http.MethodGet, "/v1/students/"+url.PathEscape(studentID)+"/plans", nil, nil, &plans)
	return plans, err
}

// HeadsWithStatus returns the plan's heads with their paid flags and the fine owed today.
func (f *Fees) HeadsWithStatus(ctx context.Context, studentID, planID string) (fee.Statement, error) {
	var stmt fee.Statement
	path := "/v1/students/" + url.PathEscape(studentID) + "/plans/" + url.PathEscape(planID) + "/heads"
	err := f.c.Do(ctx, http.MethodGet, path, nil, nil, &stmt)
	return stmt, err
}

func (f *Fees) SubmitPayment(ctx context.Context, np fee.NewPayment) (fee.Payment, error) {
	var pmt fee.Payment
	err := f.c.Do(ctx, http.MethodPost, "/v1/payments", nil, np, &pmt)
	return pmt, err
}

func (f *Fees) Payments(ctx context.Context, studentID string) ([]fee.Payment, error) {
	var pmts []fee.Payment
	err := f.c.Do(ctx, http.MethodGet, "/v1/payments", url.Values{"student": {studentID}}, nil, &pmts)
	return pmts, err
}

func (f *Fees) CheckoutKey(ctx context.Context) (string, error) {
	var conf struct {
		KeyID string `json:"key_id"`
	}
	err := f.c.Do(ctx, http.MethodGet, "/v1/checkout/config", nil, nil, &conf)
	return conf.KeyID, err
}

func (f *Fees) CreateOrder(ctx context.Context, no fee.NewOrder) (fee.Order, error) {
	var order fee.Order
	err := f.c.Do(ctx, http.MethodPost, "/v1/checkout/orders", nil, no, &order)
	return order, err
}

func (f *Fees) VerifyPayment(ctx context.Context, v fee.Verification) (fee.Order, error) {
	var order fee.Order
	err := f.c.Do(ctx, http.MethodPost, "/v1/checkout/verify", nil, v, &order)
	return order, err
}

func (f *Fees) Summary(ctx context.Context) (fee.Summary, error) {
	var sum fee.Summary
	err := f.c.Do(ctx, http.MethodGet, "/v1/fees/summary", nil, nil, &sum)
	return sum, err
}

type Attendance struct {
	c *gateway.Client
}

func (a *Attendance) Mark(ctx context.Context, nm attendance.NewMarks) ([]attendance.Record, error) {
	var recs []attendance.Record
	err := a.c.Do(ctx, http.MethodPost, "/v1/attendance", nil, nm, &recs)
	return recs, err
}

// ListByDate lists the records of a calendar day; a zero date means today.
func (a *Attendance) ListByDate(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	var recs []attendance.Record
	err := a.c.Do(ctx, http.MethodGet, "/v1/attendance", dateQuery(date), nil, &recs)
	return recs, err
}

func (a *Attendance) Summary(ctx context.Context, date time.Time) (attendance.Summary, error) {
	var sum attendance.Summary
	err := a.c.Do(ctx, http.MethodGet, "/v1/attendance/summary", dateQuery(date), nil, &sum)
	return sum, err
}
