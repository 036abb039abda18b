package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/user"
	"github.com/kannanru/studentfee/tests"
)

func Test_attendanceApi(t *testing.T) {
	f := setup(t)

	_, teacherToken := f.createUser(t, "teacher", user.RoleTeacher)
	_, accountsToken := f.createUser(t, "accounts", user.RoleAccountant)
	asha := testutil.CreateStudent(t, f.stdRepo, "cs001", "Asha Rao", "BSc CS", 1, true)
	bala := testutil.CreateStudent(t, f.stdRepo, "cs002", "Bala Iyer", "BSc CS", 1, true)

	marks := attendance.NewMarks{Marks: []attendance.Mark{
		{StudentID: asha.ID, Status: attendance.Present},
		{StudentID: bala.ID, Status: attendance.Late},
	}}

	runHTTPTests(t, f.app, []httpTest{
		{
			name: "teachers only", method: http.MethodPost, path: "/v1/attendance", token: accountsToken, body: marchallObj(t, marks),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "no marks", method: http.MethodPost, path: "/v1/attendance", token: teacherToken, body: []byte(`{"marks":[]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"marks": "marks must contain at least 1 item"}),
		},
		{
			name: "bad status", method: http.MethodPost, path: "/v1/attendance", token: teacherToken,
			body:     []byte(`{"marks":[{"student_id":"` + asha.ID + `","status":"away"}]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"status": "status must be one of [present absent late]"}),
		},
		{
			name: "bad date", path: "/v1/attendance?date=18-10-2026", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"date": "date must be formatted as YYYY-MM-DD"}),
		},
		{name: "nothing marked yet", path: "/v1/attendance", token: teacherToken, wantData: marchallList(t)},
	})

	t.Run("mark", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", teacherToken, marchallObj(t, marks))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var recs []attendance.Record
		decode(t, rec, &recs)
		require.Len(t, recs, 2)
		assert.True(t, recs[0].Date.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("list & summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/attendance?date=2026-10-18", accountsToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var recs []attendance.Record
		decode(t, rec, &recs)
		assert.Len(t, recs, 2)

		req, rec = newAuthRequest(http.MethodGet, "/v1/attendance/summary", accountsToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var sum attendance.Summary
		decode(t, rec, &sum)
		assert.Equal(t, 2, sum.Total)
		assert.Equal(t, 1, sum.Present)
		assert.Equal(t, 1, sum.Late)
		assert.Equal(t, 0, sum.Absent)
	})
}
