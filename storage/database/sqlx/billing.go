package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/fixidiomas/backoffice/core/billing"
)

const (
	enrollmentsQuery = `
		SELECT student_id, student_name, payer_name, payer_email, monthly_value, due_day, active
		FROM v_billing_enrollments`

	paymentsQuery = `
		SELECT id, student_id, amount, payment_date, competence_month, status
		FROM payments
		WHERE (competence_month >= $1 AND competence_month < $2)
		   OR (payment_date >= $1 AND payment_date < $2)
		ORDER BY payment_date, id`

	insertPaymentQuery = `
		INSERT INTO payments (student_id, amount, payment_date, competence_month, status)
		VALUES (:student_id, :amount, :payment_date, :competence_month, :status)`

	generateMonthQuery = `SELECT payments_generate_month($1::date, $2)`
	markPaidQuery      = `SELECT payment_mark_paid($1::uuid)`
	cancelQuery        = `SELECT payment_cancel($1::uuid, $2)`
	isAdminQuery       = `SELECT is_app_admin($1::uuid)`
	addEnrollmentQuery = `SELECT turma_add_aluno($1::uuid, $2::uuid)`
)

// postgres error codes mapped to billing.ErrNotFound
var notFoundCodes = map[pq.ErrorCode]bool{
	"P0002": true, // no_data_found, raised by the procedures for unknown ids
	"22P02": true, // invalid_text_representation, malformed uuid
	"23503": true, // foreign_key_violation
}

type (
	enrollmentRow struct {
		StudentID    string              `db:"student_id"`
		StudentName  null.String         `db:"student_name"`
		PayerName    null.String         `db:"payer_name"`
		PayerEmail   null.String         `db:"payer_email"`
		MonthlyValue decimal.NullDecimal `db:"monthly_value"`
		DueDay       null.Int            `db:"due_day"`
		Active       null.Bool           `db:"active"`
	}

	paymentRow struct {
		ID              string          `db:"id"`
		StudentID       string          `db:"student_id"`
		Amount          decimal.Decimal `db:"amount"`
		PaymentDate     null.Time       `db:"payment_date"`
		CompetenceMonth null.Time       `db:"competence_month"`
		Status          null.String     `db:"status"`
	}
)

func (r enrollmentRow) toEnrollment() billing.Enrollment {
	return billing.Enrollment{
		StudentID:    r.StudentID,
		StudentName:  r.StudentName.String,
		PayerName:    r.PayerName.String,
		PayerEmail:   r.PayerEmail.String,
		MonthlyValue: r.MonthlyValue.Decimal,
		DueDay:       r.DueDay.Int,
		Active:       r.Active.Bool,
	}
}

func (r paymentRow) toPaymentRecord() billing.PaymentRecord {
	p := billing.PaymentRecord{
		ID:          r.ID,
		StudentID:   r.StudentID,
		Amount:      r.Amount,
		PaymentDate: dateOnly(r.PaymentDate.Time.UTC()),
		Status:      billing.NormalizeStatus(r.Status.String),
	}
	if r.CompetenceMonth.Valid {
		m := billing.MonthOf(r.CompetenceMonth.Time.UTC())
		p.CompetenceMonth = &m
	}
	return p
}

func newPaymentRow(p billing.PaymentRecord) paymentRow {
	row := paymentRow{
		StudentID:   p.StudentID,
		Amount:      p.Amount,
		PaymentDate: null.TimeFrom(p.PaymentDate),
		Status:      null.StringFrom(string(p.Status)),
	}
	if p.CompetenceMonth != nil {
		row.CompetenceMonth = null.TimeFrom(p.CompetenceMonth.Start())
	}
	return row
}

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *sqlx.DB) billing.Repository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) QueryEnrollments(ctx context.Context, _ billing.YearMonth) ([]billing.Enrollment, error) {
	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, enrollmentsQuery); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	enrollments := make([]billing.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.toEnrollment())
	}
	return enrollments, nil
}

func (repo *billingRepository) QueryPayments(ctx context.Context, month billing.YearMonth) ([]billing.PaymentRecord, error) {
	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, paymentsQuery, month.Start(), month.Next().Start()); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	return receivedPayments(rows), nil
}

// receivedPayments drops the open charges upserted by payments_generate_month: they record money owed, not received.
func receivedPayments(rows []paymentRow) []billing.PaymentRecord {
	payments := make([]billing.PaymentRecord, 0, len(rows))
	for _, r := range rows {
		if billing.IsOpenCharge(r.Status.String) {
			continue
		}
		payments = append(payments, r.toPaymentRecord())
	}
	return payments
}

// CreatePayments inserts all payments in a single transaction.
func (repo *billingRepository) CreatePayments(ctx context.Context, payments ...billing.PaymentRecord) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, p := range payments {
		if _, err = tx.NamedExecContext(ctx, insertPaymentQuery, newPaymentRow(p)); err != nil {
			return errors.Wrap(mapError(err), "inserting payment")
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing payments")
	}
	return nil
}

func (repo *billingRepository) GenerateMonth(ctx context.Context, month billing.YearMonth, dryRun bool) (int, error) {
	var n null.Int
	if err := repo.db.GetContext(ctx, &n, generateMonthQuery, month.Start(), dryRun); err != nil {
		return 0, errors.Wrap(mapError(err), "calling payments_generate_month")
	}
	return n.Int, nil
}

func (repo *billingRepository) MarkPaid(ctx context.Context, paymentID string) error {
	if _, err := repo.db.ExecContext(ctx, markPaidQuery, paymentID); err != nil {
		return errors.Wrap(mapError(err), "calling payment_mark_paid")
	}
	return nil
}

func (repo *billingRepository) CancelPayment(ctx context.Context, paymentID string, note *string) error {
	if _, err := repo.db.ExecContext(ctx, cancelQuery, paymentID, null.StringFromPtr(note)); err != nil {
		return errors.Wrap(mapError(err), "calling payment_cancel")
	}
	return nil
}

func (repo *billingRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var ok null.Bool
	if err := repo.db.GetContext(ctx, &ok, isAdminQuery, userID); err != nil {
		if errors.Cause(mapError(err)) == billing.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "calling is_app_admin")
	}
	return ok.Bool, nil
}

func (repo *billingRepository) AddEnrollment(ctx context.Context, turmaID, studentID string) error {
	if _, err := repo.db.ExecContext(ctx, addEnrollmentQuery, turmaID, studentID); err != nil {
		return errors.Wrap(mapError(err), "calling turma_add_aluno")
	}
	return nil
}

// mapError translates driver errors into billing errors. Anything else is returned as is.
func mapError(err error) error {
	if err == sql.ErrNoRows {
		return billing.ErrNotFound
	}
	if pqErr, ok := err.(*pq.Error); ok && notFoundCodes[pqErr.Code] {
		return billing.ErrNotFound
	}
	return err
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
