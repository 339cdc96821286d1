package sqlxrepos

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/fixidiomas/backoffice/core/billing"
)

func Test_mapError(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: billing.ErrNotFound},
		{name: "no data found", err: &pq.Error{Code: "P0002"}, want: billing.ErrNotFound},
		{name: "bad uuid", err: &pq.Error{Code: "22P02"}, want: billing.ErrNotFound},
		{name: "missing procedure", err: &pq.Error{Code: "42883"}, want: &pq.Error{Code: "42883"}},
		{name: "other", err: other, want: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err))
		})
	}
}

func Test_paymentRow_toPaymentRecord(t *testing.T) {
	local := time.FixedZone("BRT", -3*60*60)
	row := paymentRow{
		ID:              "p1",
		StudentID:       "s1",
		Amount:          decimal.RequireFromString("120.50"),
		PaymentDate:     null.TimeFrom(time.Date(2025, time.March, 31, 21, 0, 0, 0, local)),
		CompetenceMonth: null.TimeFrom(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)),
		Status:          null.StringFrom("Pago"),
	}

	p := row.toPaymentRecord()
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, billing.PaymentPaid, p.Status)
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), p.PaymentDate)
	if assert.NotNil(t, p.CompetenceMonth) {
		assert.Equal(t, billing.YearMonth{Year: 2025, Month: time.March}, *p.CompetenceMonth)
	}

	row.CompetenceMonth = null.Time{}
	row.Status = null.String{}
	p = row.toPaymentRecord()
	assert.Nil(t, p.CompetenceMonth)
	assert.Equal(t, billing.PaymentOpen, p.Status)
}

func Test_receivedPayments(t *testing.T) {
	row := func(id, status string, valid bool) paymentRow {
		return paymentRow{ID: id, StudentID: "s1", Amount: decimal.NewFromInt(100), Status: null.NewString(status, valid)}
	}
	rows := []paymentRow{
		row("legacy", "", false),
		row("charge", "open", true),
		row("legacy-pending", "Pendente", true),
		row("settled", "Pago", true),
		row("canceled", "canceled", true),
		row("blank", "  ", true),
	}

	ids := make([]string, 0)
	for _, p := range receivedPayments(rows) {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"legacy", "settled", "canceled", "blank"}, ids)
}

func Test_newPaymentRow(t *testing.T) {
	m := billing.YearMonth{Year: 2025, Month: time.March}
	row := newPaymentRow(billing.PaymentRecord{
		StudentID:       "s1",
		Amount:          decimal.NewFromInt(300),
		PaymentDate:     time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC),
		CompetenceMonth: &m,
		Status:          billing.PaymentPaid,
	})
	assert.Equal(t, "paid", row.Status.String)
	assert.True(t, row.CompetenceMonth.Valid)
	assert.Equal(t, m.Start(), row.CompetenceMonth.Time)

	row = newPaymentRow(billing.PaymentRecord{StudentID: "s1", Amount: decimal.NewFromInt(1)})
	assert.False(t, row.CompetenceMonth.Valid)
}

func Test_enrollmentRow_nullColumns(t *testing.T) {
	e := enrollmentRow{StudentID: "s1"}.toEnrollment()
	assert.Equal(t, "s1", e.StudentID)
	assert.True(t, e.MonthlyValue.IsZero())
	assert.False(t, e.Active)
	assert.Zero(t, e.DueDay)
}
