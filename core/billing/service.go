package billing

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/fixidiomas/backoffice/core"
)

var NowFunc = time.Now // mockable

type (
	// Repository is the data-access contract of the external store.
	Repository interface {
		QueryEnrollments(ctx context.Context, month YearMonth) ([]Enrollment, error)
		// QueryPayments returns the payments dated in, or attributed to, month; statuses normalized.
		// Open charges created by GenerateMonth record money owed and are left out.
		QueryPayments(ctx context.Context, month YearMonth) ([]PaymentRecord, error)
		CreatePayments(ctx context.Context, payments ...PaymentRecord) error
		// GenerateMonth upserts the month's charges and returns how many were (or would be) created.
		GenerateMonth(ctx context.Context, month YearMonth, dryRun bool) (int, error)
		MarkPaid(ctx context.Context, paymentID string) error
		CancelPayment(ctx context.Context, paymentID string, note *string) error
		IsAdmin(ctx context.Context, userID string) (bool, error)
		AddEnrollment(ctx context.Context, turmaID, studentID string) error
	}

	// Cache stores computed reports. It is best-effort: callers ignore its failures.
	// GetReport also returns the version of month's entries, hit or miss; SetReport stores under that version,
	// so a report computed before an invalidation is never served after it.
	Cache interface {
		GetReport(ctx context.Context, month YearMonth, today time.Time) (Report, string, bool, error)
		SetReport(ctx context.Context, report Report, version string) error
		InvalidateMonth(ctx context.Context, month YearMonth) error
		InvalidateAll(ctx context.Context) error
	}

	ServiceInterface interface {
		Today() time.Time
		MonthReport(ctx context.Context, month YearMonth) (Report, error)
		Upcoming(ctx context.Context, days, limit int) ([]ReconciledLine, error)
		RevenueHistory(ctx context.Context, until YearMonth, months int) ([]MonthRevenue, error)
		GenerateMonth(ctx context.Context, month YearMonth, dryRun bool) (int, error)
		RegisterPayments(ctx context.Context, month YearMonth, payments []NewPayment) error
		MarkPaid(ctx context.Context, paymentID string) error
		Cancel(ctx context.Context, paymentID string, note *string) error
		SendOverdueReminders(ctx context.Context, month YearMonth) (int, error)
		AddEnrollment(ctx context.Context, turmaID, studentID string) error
		IsAdmin(ctx context.Context, userID string) (bool, error)
	}

	Service struct {
		repo    Repository
		cache   Cache
		mailSvc core.EmailService
		logger  core.Logger
		loc     *time.Location
		opts    []Option
	}
)

var _ ServiceInterface = (*Service)(nil)

// NewService returns a billing Service. cache may be nil.
func NewService(repo Repository, cache Cache, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	svc := &Service{
		repo:    repo,
		cache:   cache,
		mailSvc: mailSvc,
		logger:  logger,
		loc:     conf.Billing.Location(),
	}
	if svc.cache == nil {
		svc.cache = noCache{}
	}
	if conf.Billing.StrictDueDay {
		svc.opts = append(svc.opts, WithStrictDueDay())
	}
	return svc
}

// Today is the current date in the billing time zone.
func (svc *Service) Today() time.Time {
	return civilDate(NowFunc().In(svc.loc))
}

func (svc *Service) MonthReport(ctx context.Context, month YearMonth) (Report, error) {
	if !month.Valid() {
		return Report{}, errors.Wrap(ErrInvalidMonth, "getting month report")
	}
	today := svc.Today()

	report, version, cached, err := svc.cache.GetReport(ctx, month, today)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cached report %s: %v", month, err), err)
	} else if cached {
		return report, nil
	}
	readFailed := err != nil

	enrollments, err := svc.repo.QueryEnrollments(ctx, month)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying enrollments")
	}
	payments, err := svc.repo.QueryPayments(ctx, month)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying payments")
	}

	report, err = Reconcile(month, enrollments, payments, today, svc.opts...)
	if err != nil {
		return Report{}, errors.Wrap(err, "reconciling month")
	}
	if len(report.Issues) > 0 {
		svc.logger.Warn(
			fmt.Sprintf("%s: %d lines reconciled, %d records flagged", month, len(report.Lines), len(report.Issues)),
			map[string]interface{}{"issues": report.Issues},
		)
	}

	if readFailed {
		return report, nil
	}
	if err = svc.cache.SetReport(ctx, report, version); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching report %s: %v", month, err), err)
	}
	return report, nil
}

// Upcoming returns the unpaid lines of the current month falling due within the next days.
func (svc *Service) Upcoming(ctx context.Context, days, limit int) ([]ReconciledLine, error) {
	today := svc.Today()
	report, err := svc.MonthReport(ctx, MonthOf(today))
	if err != nil {
		return nil, errors.Wrap(err, "getting month report")
	}
	return UpcomingDues(report.Lines, today, days, limit), nil
}

// RevenueHistory returns billed against received revenue for the months ending with until, oldest first.
// months defaults to DefaultRevenueMonths and is capped at MaxRevenueMonths.
func (svc *Service) RevenueHistory(ctx context.Context, until YearMonth, months int) ([]MonthRevenue, error) {
	if !until.Valid() {
		return nil, errors.Wrap(ErrInvalidMonth, "getting revenue history")
	}
	switch {
	case months <= 0:
		months = DefaultRevenueMonths
	case months > MaxRevenueMonths:
		months = MaxRevenueMonths
	}

	history := make([]MonthRevenue, 0, months)
	for m := until.AddMonths(1 - months); len(history) < months; m = m.Next() {
		report, err := svc.MonthReport(ctx, m)
		if err != nil {
			return nil, errors.Wrapf(err, "getting month report %s", m)
		}
		history = append(history, MonthRevenue{
			Month:       m,
			Billed:      report.Totals.Billed,
			ReceivedAll: report.Totals.ReceivedAll,
		})
	}
	return history, nil
}

func (svc *Service) GenerateMonth(ctx context.Context, month YearMonth, dryRun bool) (int, error) {
	if !month.Valid() {
		return 0, errors.Wrap(ErrInvalidMonth, "generating month")
	}
	n, err := svc.repo.GenerateMonth(ctx, month, dryRun)
	if err != nil {
		return 0, errors.Wrap(err, "generating month charges")
	}
	if !dryRun {
		svc.invalidate(ctx, &month)
	}
	return n, nil
}

// RegisterPayments records payments received for month. A missing payment date means today.
func (svc *Service) RegisterPayments(ctx context.Context, month YearMonth, payments []NewPayment) error {
	if !month.Valid() {
		return errors.Wrap(ErrInvalidMonth, "registering payments")
	}
	if len(payments) == 0 {
		return ErrNoPaymentsToSave
	}

	today := svc.Today()
	records := make([]PaymentRecord, 0, len(payments))
	for i, np := range payments {
		if np.Amount.IsNegative() {
			return core.NewValidationError(ErrInvalidAmount, core.FieldError{
				Field: fmt.Sprintf("payments[%d].amount", i),
				Error: ErrInvalidAmount.Error(),
			})
		}
		date := today
		if np.PaymentDate != nil {
			date = civilDate(*np.PaymentDate)
		}
		m := month
		records = append(records, PaymentRecord{
			StudentID:       np.StudentID,
			Amount:          np.Amount,
			PaymentDate:     date,
			CompetenceMonth: &m,
			Status:          PaymentPaid,
		})
	}

	if err := svc.repo.CreatePayments(ctx, records...); err != nil {
		return errors.Wrap(err, "creating payments")
	}
	svc.invalidate(ctx, &month)
	return nil
}

func (svc *Service) MarkPaid(ctx context.Context, paymentID string) error {
	if err := svc.repo.MarkPaid(ctx, paymentID); err != nil {
		return errors.Wrap(err, "marking payment paid")
	}
	svc.invalidate(ctx, nil)
	return nil
}

func (svc *Service) Cancel(ctx context.Context, paymentID string, note *string) error {
	if note != nil {
		n := core.CleanString(*note)
		note = &n
		if n == "" {
			note = nil
		}
	}
	if err := svc.repo.CancelPayment(ctx, paymentID, note); err != nil {
		return errors.Wrap(err, "canceling payment")
	}
	svc.invalidate(ctx, nil)
	return nil
}

// SendOverdueReminders emails the payer of every overdue line of month and returns how many emails were queued.
func (svc *Service) SendOverdueReminders(ctx context.Context, month YearMonth) (int, error) {
	report, err := svc.MonthReport(ctx, month)
	if err != nil {
		return 0, errors.Wrap(err, "getting month report")
	}

	msgs := make([]*core.EmailMessage, 0)
	for _, l := range FilterLines(report.Lines, LineFilter{Status: StatusOverdue}) {
		addr, err := mail.ParseAddress(l.PayerEmail)
		if err != nil {
			continue
		}
		if addr.Name == "" {
			addr.Name = l.PayerName
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{*addr},
			Subject:      fmt.Sprintf("Overdue monthly fee: %s (%s)", l.StudentName, month),
			TemplateName: "overdue_reminder",
			TemplateData: ReminderData{
				StudentName: l.StudentName,
				PayerName:   l.PayerName,
				Month:       month.String(),
				DueDate:     l.DueDate.Format("2006-01-02"),
				Balance:     l.Balance.StringFixed(2),
				DaysOverdue: l.DaysOverdue,
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
	return len(msgs), nil
}

// AddEnrollment links a student to a class group through the store's procedure.
func (svc *Service) AddEnrollment(ctx context.Context, turmaID, studentID string) error {
	if err := svc.repo.AddEnrollment(ctx, turmaID, studentID); err != nil {
		return errors.Wrap(err, "adding enrollment")
	}
	svc.invalidate(ctx, nil)
	return nil
}

func (svc *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ok, err := svc.repo.IsAdmin(ctx, userID)
	return ok, errors.Wrap(err, "checking admin")
}

// invalidate drops cached reports of month, or all of them when month is nil.
func (svc *Service) invalidate(ctx context.Context, month *YearMonth) {
	var err error
	if month != nil {
		err = svc.cache.InvalidateMonth(ctx, *month)
	} else {
		err = svc.cache.InvalidateAll(ctx)
	}
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("invalidating cached reports: %v", err), err)
	}
}

type noCache struct{}

func (noCache) GetReport(context.Context, YearMonth, time.Time) (Report, string, bool, error) {
	return Report{}, "", false, nil
}
func (noCache) SetReport(context.Context, Report, string) error  { return nil }
func (noCache) InvalidateMonth(context.Context, YearMonth) error { return nil }
func (noCache) InvalidateAll(context.Context) error              { return nil }
