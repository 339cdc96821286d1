package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixidiomas/backoffice/core/billing"
	testutil "github.com/fixidiomas/backoffice/tests"
)

var march = billing.YearMonth{Year: 2025, Month: time.March}

type fixture struct {
	testutil.Fixture
	userToken, adminToken string
}

func seed(t *testing.T, app *testApp) fixture {
	f := fixture{Fixture: testutil.SeedSchool(t, app.db)}
	f.adminToken = getToken(t, app.conf, f.AdminID)
	f.userToken = getToken(t, app.conf, uuid.New().String())
	return f
}

func getReport(t *testing.T, app *testApp, token, query string) billing.ReportView {
	t.Helper()
	req, rec := newAuthRequest(http.MethodGet, "/v1/billing/months/2025-03"+query, token)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp billing.ReportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func lineNames(lines []billing.ReconciledLine) []string {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, l.StudentName)
	}
	return names
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), append([]interface{}{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func Test_billingApi_monthReport(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	resp := getReport(t, app, f.userToken, "")
	assert.Equal(t, march, resp.Month)
	assert.Equal(t, []string{"Ana Souza", "Bruno Lima", "Davi Rocha"}, lineNames(resp.Lines))
	assert.Equal(t, billing.StatusPaid, resp.Lines[0].Status)
	assert.Equal(t, billing.StatusPending, resp.Lines[1].Status)
	assert.Equal(t, billing.StatusOverdue, resp.Lines[2].Status)
	assert.Equal(t, 10, resp.Lines[2].DaysOverdue)

	totals := resp.Totals
	assertMoney(t, "850", totals.Billed, "billed")
	assertMoney(t, "300", totals.ReceivedActive, "received active")
	assertMoney(t, "400", totals.ReceivedAll, "received all")
	assertMoney(t, "550", totals.Pending, "pending")
	assertMoney(t, "250", totals.Overdue, "overdue")
	assertMoney(t, "10200", totals.AnnualProjection, "annual projection")
	assert.Equal(t, 3, totals.ActiveStudents)
	assert.Equal(t, billing.ReceivedActiveOnly, resp.ReceivedMode)
	assertMoney(t, "300", resp.Received, "received")

	t.Run("status filter", func(t *testing.T) {
		resp := getReport(t, app, f.userToken, "?status=overdue")
		assert.Equal(t, []string{"Davi Rocha"}, lineNames(resp.Lines))
		assertMoney(t, "850", resp.Totals.Billed, "totals ignore filters")
	})

	t.Run("search filter", func(t *testing.T) {
		resp := getReport(t, app, f.userToken, "?search=BRUNO")
		assert.Equal(t, []string{"Bruno Lima"}, lineNames(resp.Lines))

		resp = getReport(t, app, f.userToken, "?search=davi.parent@")
		assert.Equal(t, []string{"Davi Rocha"}, lineNames(resp.Lines))
	})

	t.Run("received mode", func(t *testing.T) {
		resp := getReport(t, app, f.userToken, "?received=all-payments")
		assert.Equal(t, billing.ReceivedAllPayments, resp.ReceivedMode)
		assertMoney(t, "400", resp.Received, "received")
	})

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/billing/months/2025-03", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "invalid month", path: "/v1/billing/months/2025-13", token: f.userToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"month":"must be a month formatted as YYYY-MM"}`),
		},
		{
			name: "invalid status", path: "/v1/billing/months/2025-03?status=canceled", token: f.userToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"must be one of pending, overdue, paid or all"}`),
		},
		{
			name: "invalid received mode", path: "/v1/billing/months/2025-03?received=cash", token: f.userToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"received":"must be one of active-only or all-payments"}`),
		},
	})
}

func Test_billingApi_upcoming(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	get := func(query string) (int, []billing.ReconciledLine, map[string]string) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/billing/upcoming"+query, f.userToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			var fields map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &fields)
			return rec.Code, nil, fields
		}
		var lines []billing.ReconciledLine
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
		return rec.Code, lines, nil
	}

	code, lines, _ := get("")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"Bruno Lima"}, lineNames(lines))

	code, lines, _ = get("?days=3")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, lines)

	code, _, fields := get("?days=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]string{"days": "must be an integer"}, fields)

	code, _, fields = get("?days=40")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, fields, "days")
}

func Test_billingApi_revenue(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	app.db.AddPayment(billing.PaymentRecord{
		ID:          uuid.New().String(),
		StudentID:   f.Davi.ID,
		Amount:      decimal.NewFromInt(250),
		PaymentDate: time.Date(2024, time.December, 28, 0, 0, 0, 0, time.UTC),
		Status:      billing.PaymentPaid,
	})

	req, rec := newAuthRequest(http.MethodGet, "/v1/billing/revenue?months=4", f.userToken)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var history []billing.MonthRevenue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 4)
	months := make([]string, 0, len(history))
	for _, r := range history {
		months = append(months, r.Month.String())
		assertMoney(t, "850", r.Billed, "billed %s", r.Month)
	}
	assert.Equal(t, []string{"2024-12", "2025-01", "2025-02", "2025-03"}, months)
	assertMoney(t, "250", history[0].ReceivedAll, "december")
	assertMoney(t, "0", history[1].ReceivedAll, "january")
	assertMoney(t, "400", history[3].ReceivedAll, "march")

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/billing/revenue", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "invalid until", path: "/v1/billing/revenue?until=2025", token: f.userToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"until":"must be a month formatted as YYYY-MM"}`),
		},
		{
			name: "invalid months", path: "/v1/billing/revenue?months=six", token: f.userToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"months":"must be an integer"}`),
		},
	})
}

func Test_billingApi_generate(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	path := "/v1/billing/months/2025-03/generate"

	app.run(t, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "Admin required", method: http.MethodPost, path: path, token: f.userToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden)},
		{
			name: "dry run", method: http.MethodPost, path: path, token: f.adminToken, body: []byte(`{"dry_run":true}`),
			wantCode: http.StatusOK, wantData: []byte(`{"created":3,"dry_run":true}`),
		},
		{
			name: "generate", method: http.MethodPost, path: path, token: f.adminToken,
			wantCode: http.StatusOK, wantData: []byte(`{"created":3,"dry_run":false}`),
		},
		{
			name: "generate again", method: http.MethodPost, path: path, token: f.adminToken,
			wantCode: http.StatusOK, wantData: []byte(`{"created":0,"dry_run":false}`),
		},
		{
			name: "invalid month", method: http.MethodPost, path: "/v1/billing/months/march/generate", token: f.adminToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"month":"must be a month formatted as YYYY-MM"}`),
		},
	})
	assert.Len(t, app.db.ChargeIDs(march), 3)
}

func Test_billingApi_registerPayments(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	path := "/v1/billing/months/2025-03/payments"

	body := func(studentID, amount string) []byte {
		return []byte(`{"payments":[{"student_id":"` + studentID + `","amount":` + amount + `,"payment_date":"2025-03-14T00:00:00Z"}]}`)
	}

	app.run(t, []httpTest{
		{name: "Admin required", method: http.MethodPost, path: path, token: f.userToken, body: body(f.Bruno.ID, "300"), wantCode: http.StatusForbidden},
		{
			name: "no payments", method: http.MethodPost, path: path, token: f.adminToken, body: []byte(`{"payments":[]}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "zero amount", method: http.MethodPost, path: path, token: f.adminToken, body: body(f.Bruno.ID, "0"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"payments[0].amount":"must be greater than 0"}`),
		},
		{
			name: "unknown student", method: http.MethodPost, path: path, token: f.adminToken, body: body(uuid.New().String(), "300"),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound),
		},
		{
			name: "register", method: http.MethodPost, path: path, token: f.adminToken, body: body(f.Bruno.ID, "300"),
			wantCode: http.StatusCreated, wantData: []byte(`{"registered":1}`),
		},
	})

	resp := getReport(t, app, f.userToken, "?status=paid")
	assert.Equal(t, []string{"Ana Souza", "Bruno Lima"}, lineNames(resp.Lines))
	assertMoney(t, "300", resp.Lines[1].AmountPaid, "bruno paid")
}

func Test_billingApi_sendReminders(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	app.run(t, []httpTest{
		{
			name: "send", method: http.MethodPost, path: "/v1/billing/months/2025-03/reminders", token: f.adminToken,
			wantCode: http.StatusOK, wantData: []byte(`{"queued":1}`),
		},
	})

	sent := app.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.Davi.PayerEmail, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Outstanding balance: 250.00 (10 days overdue).")
}

func Test_billingApi_markPaidAndCancel(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	app.run(t, []httpTest{
		{
			name: "generate", method: http.MethodPost, path: "/v1/billing/months/2025-03/generate", token: f.adminToken,
			wantCode: http.StatusOK,
		},
		{
			name: "cancel payment", method: http.MethodPost, path: "/v1/billing/payments/" + f.AnaPaymentID + "/cancel",
			token: f.adminToken, body: []byte(`{"note":"  bounced  "}`), wantCode: http.StatusNoContent,
		},
		{
			name: "mark canceled paid", method: http.MethodPost, path: "/v1/billing/payments/" + f.AnaPaymentID + "/mark-paid",
			token: f.adminToken, wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: billing.ErrInvalidStatus.Error()}),
		},
		{
			name: "unknown payment", method: http.MethodPost, path: "/v1/billing/payments/" + uuid.New().String() + "/mark-paid",
			token: f.adminToken, wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound),
		},
		{
			name: "malformed id", method: http.MethodPost, path: "/v1/billing/payments/42/cancel",
			token: f.adminToken, wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound),
		},
	})

	note, ok := app.db.Note(f.AnaPaymentID)
	assert.True(t, ok)
	assert.Equal(t, "bounced", note)

	resp := getReport(t, app, f.userToken, "?status=overdue")
	assert.Equal(t, []string{"Ana Souza", "Davi Rocha"}, lineNames(resp.Lines))

	for _, id := range app.db.ChargeIDs(march) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/billing/payments/"+id+"/mark-paid", f.adminToken)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}

	resp = getReport(t, app, f.userToken, "")
	assert.Equal(t, 3, resp.Totals.PaidCount)
	assertMoney(t, "0", resp.Totals.Pending, "pending")
}

func Test_billingApi_addEnrollment(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	small := testutil.CreateTurma(t, app.db, "Francês", "200", 1)
	path := "/v1/turmas/" + small.ID + "/students"

	body := func(studentID string) []byte {
		return []byte(`{"student_id":"` + studentID + `"}`)
	}

	app.run(t, []httpTest{
		{name: "Admin required", method: http.MethodPost, path: path, token: f.userToken, body: body(f.Bruno.ID), wantCode: http.StatusForbidden},
		{name: "enroll", method: http.MethodPost, path: path, token: f.adminToken, body: body(f.Bruno.ID), wantCode: http.StatusNoContent},
		{name: "enroll twice", method: http.MethodPost, path: path, token: f.adminToken, body: body(f.Bruno.ID), wantCode: http.StatusNoContent},
		{
			name: "class full", method: http.MethodPost, path: path, token: f.adminToken, body: body(f.Ana.ID),
			wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: billing.ErrClassFull.Error()}),
		},
		{
			name: "unknown turma", method: http.MethodPost, path: "/v1/turmas/" + uuid.New().String() + "/students",
			token: f.adminToken, body: body(f.Ana.ID), wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound),
		},
		{
			name: "invalid student id", method: http.MethodPost, path: path, token: f.adminToken, body: body("nope"),
			wantCode: http.StatusBadRequest,
		},
	})

	resp := getReport(t, app, f.userToken, "?search=bruno")
	require.Len(t, resp.Lines, 1)
	assertMoney(t, "500", resp.Lines[0].AmountDue, "bruno due")
}
