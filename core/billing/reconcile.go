package billing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/fixidiomas/backoffice/core"
)

var (
	// paidTolerance absorbs rounding: a line is paid once paid >= due - 0.01.
	paidTolerance = decimal.New(1, -2)
	monthsInYear  = decimal.NewFromInt(12)
)

type reconcileOptions struct {
	strictDueDay bool
}

// Option configures Reconcile.
type Option func(*reconcileOptions)

// WithStrictDueDay flags students whose active enrollments disagree on the due day.
// The earliest due day is still used to build the line.
func WithStrictDueDay() Option {
	return func(o *reconcileOptions) { o.strictDueDay = true }
}

type studentAcc struct {
	line      ReconciledLine
	dueDay    int // clamped
	ambiguous bool
}

// Reconcile computes, for month, the billing line of every active student and the month totals.
//
// Per student, the monthly values of all its active enrollments are summed and the earliest due day wins.
// Canceled payments never count. Payments of unknown or inactive students only count in MonthTotals.ReceivedAll.
// Records with negative amounts are skipped and reported in Report.Issues.
// today is compared as a calendar date, in its own location.
func Reconcile(month YearMonth, enrollments []Enrollment, payments []PaymentRecord, today time.Time, opts ...Option) (Report, error) {
	if !month.Valid() {
		return Report{}, errors.Wrapf(ErrInvalidMonth, "reconciling %d-%d", month.Year, int(month.Month))
	}
	var o reconcileOptions
	for _, opt := range opts {
		opt(&o)
	}

	today = civilDate(today)
	report := Report{
		Month:  month,
		Today:  today,
		Lines:  make([]ReconciledLine, 0),
		Issues: make([]Issue, 0),
	}

	accs := make(map[string]*studentAcc)
	for _, e := range enrollments {
		if e.MonthlyValue.IsNegative() {
			report.Issues = append(report.Issues, Issue{
				Kind:      IssueInvalidAmount,
				StudentID: e.StudentID,
				Message:   fmt.Sprintf("enrollment skipped: %v (%s)", ErrInvalidAmount, e.MonthlyValue),
			})
			continue
		}
		if !e.Active {
			continue
		}

		dueDay := clampDueDay(e.DueDay)
		acc, ok := accs[e.StudentID]
		if !ok {
			accs[e.StudentID] = &studentAcc{
				line: ReconciledLine{
					StudentID:   e.StudentID,
					StudentName: e.StudentName,
					PayerName:   e.PayerName,
					PayerEmail:  e.PayerEmail,
					AmountDue:   e.MonthlyValue,
					AmountPaid:  decimal.Zero,
				},
				dueDay: dueDay,
			}
			continue
		}

		acc.line.AmountDue = acc.line.AmountDue.Add(e.MonthlyValue)
		if dueDay != acc.dueDay {
			acc.ambiguous = true
			if dueDay < acc.dueDay {
				acc.dueDay = dueDay
			}
		}
		if acc.line.StudentName == "" {
			acc.line.StudentName = e.StudentName
		}
		if acc.line.PayerName == "" {
			acc.line.PayerName = e.PayerName
		}
		if acc.line.PayerEmail == "" {
			acc.line.PayerEmail = e.PayerEmail
		}
	}

	receivedAll := decimal.Zero
	for _, p := range payments {
		if NormalizeStatus(string(p.Status)) == PaymentCanceled || !p.AttributedTo(month) {
			continue
		}
		if p.Amount.IsNegative() {
			report.Issues = append(report.Issues, Issue{
				Kind:      IssueInvalidAmount,
				StudentID: p.StudentID,
				PaymentID: p.ID,
				Message:   fmt.Sprintf("payment skipped: %v (%s)", ErrInvalidAmount, p.Amount),
			})
			continue
		}
		receivedAll = receivedAll.Add(p.Amount)
		if acc, ok := accs[p.StudentID]; ok {
			acc.line.AmountPaid = acc.line.AmountPaid.Add(p.Amount)
		}
	}

	for _, acc := range accs {
		report.Lines = append(report.Lines, settleLine(acc, month, today))
	}
	sortLines(report.Lines)

	totals := MonthTotals{
		Billed:         decimal.Zero,
		ReceivedActive: decimal.Zero,
		ReceivedAll:    receivedAll,
		Overdue:        decimal.Zero,
		ActiveStudents: len(report.Lines),
	}
	for _, l := range report.Lines {
		totals.Billed = totals.Billed.Add(l.AmountDue)
		totals.ReceivedActive = totals.ReceivedActive.Add(decimal.Min(l.AmountPaid, l.AmountDue))
		switch l.Status {
		case StatusPaid:
			totals.PaidCount++
		case StatusOverdue:
			totals.OverdueCount++
			totals.Overdue = totals.Overdue.Add(l.Balance)
		default:
			totals.PendingCount++
		}

		if o.strictDueDay && accs[l.StudentID].ambiguous {
			report.Issues = append(report.Issues, Issue{
				Kind:      IssueAmbiguousDueDay,
				StudentID: l.StudentID,
				Message:   fmt.Sprintf("%v: using day %d", ErrAmbiguousDueDay, l.DueDate.Day()),
			})
		}
	}
	totals.Pending = decimal.Max(totals.Billed.Sub(totals.ReceivedActive), decimal.Zero)
	totals.AnnualProjection = totals.Billed.Mul(monthsInYear)
	report.Totals = totals

	return report, nil
}

func settleLine(acc *studentAcc, month YearMonth, today time.Time) ReconciledLine {
	l := acc.line
	l.DueDate = month.Day(acc.dueDay)
	l.Balance = decimal.Max(l.AmountDue.Sub(l.AmountPaid), decimal.Zero)

	switch {
	case l.AmountPaid.GreaterThanOrEqual(l.AmountDue.Sub(paidTolerance)):
		l.Status = StatusPaid
	case l.DueDate.Before(today):
		l.Status = StatusOverdue
		l.DaysOverdue = int(today.Sub(l.DueDate).Hours() / 24)
	default:
		l.Status = StatusPending
	}
	return l
}

func sortLines(lines []ReconciledLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		ni, nj := strings.ToLower(lines[i].StudentName), strings.ToLower(lines[j].StudentName)
		if ni != nj {
			return ni < nj
		}
		return lines[i].StudentID < lines[j].StudentID
	})
}

// FilterLines returns the lines matching filter, keeping their order.
func FilterLines(lines []ReconciledLine, filter LineFilter) []ReconciledLine {
	search := core.CleanString(filter.Search, true /* lower */)
	filtered := make([]ReconciledLine, 0, len(lines))
	for _, l := range lines {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if search != "" &&
			!core.ContainsFold(l.StudentName, search) &&
			!core.ContainsFold(l.PayerName, search) &&
			!core.ContainsFold(l.PayerEmail, search) {
			continue
		}
		filtered = append(filtered, l)
	}
	return filtered
}

// UpcomingDues returns the unpaid lines falling due between today and today+days (inclusive), earliest first.
// limit <= 0 means no limit.
func UpcomingDues(lines []ReconciledLine, today time.Time, days, limit int) []ReconciledLine {
	today = civilDate(today)
	until := today.AddDate(0, 0, days)

	upcoming := make([]ReconciledLine, 0)
	for _, l := range lines {
		if l.Status == StatusPaid || l.DueDate.Before(today) || l.DueDate.After(until) {
			continue
		}
		upcoming = append(upcoming, l)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].DueDate.Before(upcoming[j].DueDate)
	})
	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming
}
