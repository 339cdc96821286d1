package inmemdb

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fixidiomas/backoffice/core/billing"
)

type (
	Student struct {
		ID         string
		Name       string
		PayerName  string
		PayerEmail string
		DueDay     int
		Active     bool
	}

	Turma struct {
		ID           string
		Name         string
		MonthlyValue decimal.Decimal
		Capacity     int // 0 means unlimited
	}

	// DB is a thread-safe in-memory stand-in for the external store.
	DB struct {
		mu       sync.RWMutex
		students map[string]*Student
		turmas   map[string]*Turma
		links    map[string][]string               // turmaID -> studentIDs, in enrollment order
		payments map[string]*billing.PaymentRecord // statuses kept as stored
		charges  map[string]bool                   // ids of the payment rows created by GenerateMonth
		notes    map[string]string                 // cancellation notes by payment id
		admins   map[string]bool
		order    []string // payment ids in insertion order
	}
)

func Open() *DB {
	return &DB{
		students: make(map[string]*Student),
		turmas:   make(map[string]*Turma),
		links:    make(map[string][]string),
		payments: make(map[string]*billing.PaymentRecord),
		charges:  make(map[string]bool),
		notes:    make(map[string]string),
		admins:   make(map[string]bool),
	}
}

func (db *DB) AddStudent(s Student) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.students[s.ID] = &s
}

func (db *DB) AddTurma(t Turma) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.turmas[t.ID] = &t
}

func (db *DB) AddAdmin(userID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.admins[userID] = true
}

// AddPayment stores p as is; p.ID must be set.
func (db *DB) AddPayment(p billing.PaymentRecord) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.insertPayment(p)
}

// Payments returns every stored payment, in insertion order.
func (db *DB) Payments() []billing.PaymentRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]billing.PaymentRecord, 0, len(db.order))
	for _, id := range db.order {
		out = append(out, *db.payments[id])
	}
	return out
}

// ChargeIDs returns the ids of the charges generated for month, in creation order.
func (db *DB) ChargeIDs(month billing.YearMonth) []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ids := make([]string, 0)
	for _, id := range db.order {
		if p := db.payments[id]; db.charges[id] && p.AttributedTo(month) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Note returns the cancellation note of a payment.
func (db *DB) Note(paymentID string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n, ok := db.notes[paymentID]
	return n, ok
}

func (db *DB) insertPayment(p billing.PaymentRecord) {
	if _, ok := db.payments[p.ID]; !ok {
		db.order = append(db.order, p.ID)
	}
	db.payments[p.ID] = &p
}
