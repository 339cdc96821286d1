package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixidiomas/backoffice/core/billing"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

// QueryEnrollments returns one row per (class group, student) link, valued at the group's monthly value.
func (repo *billingRepository) QueryEnrollments(_ context.Context, _ billing.YearMonth) ([]billing.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.enrollments(), nil
}

func (repo *billingRepository) enrollments() []billing.Enrollment {
	turmaIDs := make([]string, 0, len(repo.db.links))
	for id := range repo.db.links {
		turmaIDs = append(turmaIDs, id)
	}
	sort.Strings(turmaIDs)

	rows := make([]billing.Enrollment, 0)
	for _, tid := range turmaIDs {
		turma := repo.db.turmas[tid]
		for _, sid := range repo.db.links[tid] {
			st, ok := repo.db.students[sid]
			if !ok {
				continue
			}
			rows = append(rows, billing.Enrollment{
				StudentID:    st.ID,
				StudentName:  st.Name,
				PayerName:    st.PayerName,
				PayerEmail:   st.PayerEmail,
				MonthlyValue: turma.MonthlyValue,
				DueDay:       st.DueDay,
				Active:       st.Active,
			})
		}
	}
	return rows
}

func (repo *billingRepository) QueryPayments(_ context.Context, month billing.YearMonth) ([]billing.PaymentRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	out := make([]billing.PaymentRecord, 0)
	for _, id := range repo.db.order {
		p := *repo.db.payments[id]
		if !p.AttributedTo(month) && !month.Contains(p.PaymentDate) {
			continue
		}
		if billing.IsOpenCharge(string(p.Status)) {
			continue
		}
		p.Status = billing.NormalizeStatus(string(p.Status))
		out = append(out, p)
	}
	return out, nil
}

func (repo *billingRepository) CreatePayments(_ context.Context, payments ...billing.PaymentRecord) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, p := range payments {
		if _, ok := repo.db.students[p.StudentID]; !ok {
			return billing.ErrNotFound
		}
	}
	for _, p := range payments {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		repo.db.insertPayment(p)
	}
	return nil
}

// GenerateMonth upserts one open charge row per active student lacking one for month, due on the student's due day.
func (repo *billingRepository) GenerateMonth(_ context.Context, month billing.YearMonth, dryRun bool) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	due := make(map[string]decimal.Decimal)
	dueDay := make(map[string]int)
	order := make([]string, 0)
	for _, e := range repo.enrollments() {
		if !e.Active {
			continue
		}
		if _, ok := due[e.StudentID]; !ok {
			order = append(order, e.StudentID)
			due[e.StudentID] = decimal.Zero
			dueDay[e.StudentID] = e.DueDay
		}
		due[e.StudentID] = due[e.StudentID].Add(e.MonthlyValue)
	}

	charged := make(map[string]bool)
	for id := range repo.db.charges {
		if p := repo.db.payments[id]; p.AttributedTo(month) {
			charged[p.StudentID] = true
		}
	}

	created := 0
	for _, sid := range order {
		if charged[sid] {
			continue
		}
		created++
		if dryRun {
			continue
		}
		m := month
		p := billing.PaymentRecord{
			ID:              uuid.New().String(),
			StudentID:       sid,
			Amount:          due[sid],
			PaymentDate:     month.Day(dueDay[sid]),
			CompetenceMonth: &m,
			Status:          billing.PaymentOpen,
		}
		repo.db.insertPayment(p)
		repo.db.charges[p.ID] = true
	}
	return created, nil
}

// MarkPaid settles a payment row. A charge is paid in full on the current date.
func (repo *billingRepository) MarkPaid(_ context.Context, paymentID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[paymentID]
	if !ok {
		return billing.ErrNotFound
	}
	switch billing.NormalizeStatus(string(p.Status)) {
	case billing.PaymentPaid:
		return nil
	case billing.PaymentCanceled:
		return billing.ErrInvalidStatus
	}
	if repo.db.charges[paymentID] {
		now := billing.NowFunc().UTC()
		p.PaymentDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	p.Status = billing.PaymentPaid
	return nil
}

func (repo *billingRepository) CancelPayment(_ context.Context, paymentID string, note *string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[paymentID]
	if !ok {
		return billing.ErrNotFound
	}
	p.Status = billing.PaymentCanceled
	if note != nil {
		repo.db.notes[paymentID] = *note
	}
	return nil
}

func (repo *billingRepository) IsAdmin(_ context.Context, userID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.admins[userID], nil
}

// AddEnrollment links a student to a class group. Linking twice is a no-op.
func (repo *billingRepository) AddEnrollment(_ context.Context, turmaID, studentID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	turma, ok := repo.db.turmas[turmaID]
	if !ok {
		return billing.ErrNotFound
	}
	if _, ok = repo.db.students[studentID]; !ok {
		return billing.ErrNotFound
	}
	linked := repo.db.links[turmaID]
	for _, sid := range linked {
		if sid == studentID {
			return nil
		}
	}
	if turma.Capacity > 0 && len(linked) >= turma.Capacity {
		return billing.ErrClassFull
	}
	repo.db.links[turmaID] = append(linked, studentID)
	return nil
}
