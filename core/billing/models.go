package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Enrollment is one billable link of a student, snapshotted for the reference month.
// A student may have several rows (one per class group).
type Enrollment struct {
	StudentID    string          `json:"student_id"`
	StudentName  string          `json:"student_name"`
	PayerName    string          `json:"payer_name"`
	PayerEmail   string          `json:"payer_email"`
	MonthlyValue decimal.Decimal `json:"monthly_value"`
	DueDay       int             `json:"due_day"`
	Active       bool            `json:"active"`
}

type PaymentStatus string

const (
	PaymentOpen     PaymentStatus = "open"
	PaymentPaid     PaymentStatus = "paid"
	PaymentCanceled PaymentStatus = "canceled"
)

// NormalizeStatus maps stored status labels (including legacy portuguese ones) to a PaymentStatus.
// Anything unknown is open.
func NormalizeStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pago", "paid":
		return PaymentPaid
	case "cancelado", "cancelada", "canceled", "cancelled":
		return PaymentCanceled
	default:
		return PaymentOpen
	}
}

// IsOpenCharge reports whether a stored status label marks an unsettled charge, i.e. a row the month
// generator upserted for money owed. Rows without a status are legacy cash records and are not charges.
func IsOpenCharge(status string) bool {
	return strings.TrimSpace(status) != "" && NormalizeStatus(status) == PaymentOpen
}

// PaymentRecord is a payment as read from the store.
// It belongs to CompetenceMonth when set, otherwise to the month of PaymentDate.
type PaymentRecord struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"student_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     time.Time       `json:"payment_date"`
	CompetenceMonth *YearMonth      `json:"competence_month,omitempty"`
	Status          PaymentStatus   `json:"status"`
}

// AttributedTo reports whether the payment counts for month.
func (p PaymentRecord) AttributedTo(month YearMonth) bool {
	if p.CompetenceMonth != nil {
		return *p.CompetenceMonth == month
	}
	return month.Contains(p.PaymentDate)
}

type LineStatus string

const (
	StatusPending LineStatus = "pending"
	StatusOverdue LineStatus = "overdue"
	StatusPaid    LineStatus = "paid"
)

// ParseLineStatus accepts the three line statuses; "" and "all" mean no status.
func ParseLineStatus(s string) (LineStatus, bool) {
	switch st := LineStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusOverdue, StatusPaid:
		return st, true
	case "", "all":
		return "", true
	}
	return "", false
}

// ReconciledLine is the computed billing position of one active student for the reference month.
type ReconciledLine struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	PayerName   string          `json:"payer_name"`
	PayerEmail  string          `json:"payer_email"`
	DueDate     time.Time       `json:"due_date"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Balance     decimal.Decimal `json:"balance"`
	Status      LineStatus      `json:"status"`
	DaysOverdue int             `json:"days_overdue"`
}

type ReceivedMode string

const (
	// ReceivedActiveOnly counts min(paid, due) of active lines; it reconciles against Billed.
	ReceivedActiveOnly ReceivedMode = "active-only"
	// ReceivedAllPayments counts every valid payment of the month (cash basis).
	ReceivedAllPayments ReceivedMode = "all-payments"
)

func ParseReceivedMode(s string) (ReceivedMode, bool) {
	switch m := ReceivedMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ReceivedActiveOnly, ReceivedAllPayments:
		return m, true
	case "":
		return ReceivedActiveOnly, true
	}
	return "", false
}

type MonthTotals struct {
	Billed           decimal.Decimal `json:"billed"`
	ReceivedActive   decimal.Decimal `json:"received_active"`
	ReceivedAll      decimal.Decimal `json:"received_all"`
	Pending          decimal.Decimal `json:"pending"`
	Overdue          decimal.Decimal `json:"overdue"`
	AnnualProjection decimal.Decimal `json:"annual_projection"`
	ActiveStudents   int             `json:"active_students"`
	PaidCount        int             `json:"paid_count"`
	PendingCount     int             `json:"pending_count"`
	OverdueCount     int             `json:"overdue_count"`
}

// Received returns the received figure of the given mode.
func (t MonthTotals) Received(mode ReceivedMode) decimal.Decimal {
	if mode == ReceivedAllPayments {
		return t.ReceivedAll
	}
	return t.ReceivedActive
}

type IssueKind string

const (
	IssueInvalidAmount   IssueKind = "InvalidAmount"
	IssueAmbiguousDueDay IssueKind = "AmbiguousDueDay"
)

// Issue is a record skipped or flagged during reconciliation.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	StudentID string    `json:"student_id,omitempty"`
	PaymentID string    `json:"payment_id,omitempty"`
	Message   string    `json:"message"`
}

type Report struct {
	Month  YearMonth        `json:"month"`
	Today  time.Time        `json:"today"`
	Lines  []ReconciledLine `json:"lines"`
	Totals MonthTotals      `json:"totals"`
	Issues []Issue          `json:"issues"`
}

// ReportView is a report with its lines filtered and the selected received figure echoed.
type ReportView struct {
	Report
	ReceivedMode ReceivedMode    `json:"received_mode"`
	Received     decimal.Decimal `json:"received"`
}

func NewReportView(report Report, filter LineFilter, mode ReceivedMode) ReportView {
	report.Lines = FilterLines(report.Lines, filter)
	return ReportView{
		Report:       report,
		ReceivedMode: mode,
		Received:     report.Totals.Received(mode),
	}
}

const (
	DefaultRevenueMonths = 6
	MaxRevenueMonths     = 24
)

// MonthRevenue compares what a month billed with what it received on a cash basis.
type MonthRevenue struct {
	Month       YearMonth       `json:"month"`
	Billed      decimal.Decimal `json:"billed"`
	ReceivedAll decimal.Decimal `json:"received_all"`
}

// LineFilter narrows report lines. Search matches student name, payer name or payer email (case-insensitive).
type LineFilter struct {
	Status LineStatus
	Search string
}

// NewPayment is a payment registered from the back-office for the reference month.
type NewPayment struct {
	StudentID   string          `json:"student_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentDate *time.Time      `json:"payment_date"`
}

type RegisterPayments struct {
	Payments []NewPayment `json:"payments" validate:"required,min=1,dive"`
}

type CancelPayment struct {
	Note *string `json:"note" validate:"omitempty,max=500"`
}

type GenerateMonth struct {
	DryRun bool `json:"dry_run"`
}

type AddEnrollment struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}

// ReminderData is handed to the overdue reminder email templates.
type ReminderData struct {
	StudentName string
	PayerName   string
	Month       string
	DueDate     string
	Balance     string
	DaysOverdue int
}
