package testutil

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
	"github.com/fixidiomas/backoffice/storage/database/inmem"
)

// NewTestConfig returns the configuration used across tests: UTC billing, no cache, test mode.
func NewTestConfig() *core.Config {
	return &core.Config{
		AppName:          "Backoffice",
		Env:              "test",
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Backoffice", Address: "noreply@backoffice.test"},
		FrontendBaseURL:  "http://localhost:3000",
		Server:           core.ServerConfig{DisableReqLogs: true},
		Billing: core.BillingConfig{
			Timezone:      "UTC",
			UpcomingDays:  5,
			UpcomingLimit: 5,
		},
	}
}

// Logger records every logged message and never exits.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, level+": "+msg)
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) {
	l.log("fatal", msg)
	log.Printf("fatal: %s", msg)
}

// Contains reports whether a message containing sub was logged at level.
func (l *Logger) Contains(level, sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if strings.HasPrefix(m, level+": ") && strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func CreateStudent(t *testing.T, db *inmemdb.DB, name string, dueDay int, active bool) inmemdb.Student {
	t.Helper()
	first := strings.ToLower(strings.Fields(name)[0])
	st := inmemdb.Student{
		ID:         uuid.New().String(),
		Name:       name,
		PayerName:  "Parent of " + name,
		PayerEmail: fmt.Sprintf("%s.parent@example.com", first),
		DueDay:     dueDay,
		Active:     active,
	}
	db.AddStudent(st)
	return st
}

func CreateTurma(t *testing.T, db *inmemdb.DB, name, monthlyValue string, capacity int) inmemdb.Turma {
	t.Helper()
	value, err := decimal.NewFromString(monthlyValue)
	if err != nil {
		t.Fatalf("CreateTurma() failed: %v", err)
	}
	turma := inmemdb.Turma{
		ID:           uuid.New().String(),
		Name:         name,
		MonthlyValue: value,
		Capacity:     capacity,
	}
	db.AddTurma(turma)
	return turma
}

// Enroll links students to turma through the repository, failing the test on error.
func Enroll(t *testing.T, db *inmemdb.DB, turma inmemdb.Turma, students ...inmemdb.Student) {
	t.Helper()
	repo := inmemdb.NewBillingRepository(db)
	for _, st := range students {
		if err := repo.AddEnrollment(context.Background(), turma.ID, st.ID); err != nil {
			t.Fatalf("Enroll() failed: %v", err)
		}
	}
}

// Fixture is the school seeded by SeedSchool.
type Fixture struct {
	Ana, Bruno, Carla, Davi inmemdb.Student
	TurmaA, TurmaB          inmemdb.Turma
	AnaPaymentID            string
	AdminID                 string
}

// SeedSchool seeds a school billed 850 in March 2025. On 2025-03-15: Ana paid, Bruno pending (due on the 20th),
// Davi overdue since the 5th and Carla inactive with a 100 payment.
func SeedSchool(t *testing.T, db *inmemdb.DB) Fixture {
	t.Helper()
	var f Fixture
	f.TurmaA = CreateTurma(t, db, "Inglês A1", "300", 0)
	f.TurmaB = CreateTurma(t, db, "Espanhol B1", "250", 0)
	f.Ana = CreateStudent(t, db, "Ana Souza", 10, true)
	f.Bruno = CreateStudent(t, db, "Bruno Lima", 20, true)
	f.Carla = CreateStudent(t, db, "Carla Dias", 10, false)
	f.Davi = CreateStudent(t, db, "Davi Rocha", 5, true)
	Enroll(t, db, f.TurmaA, f.Ana, f.Bruno, f.Carla)
	Enroll(t, db, f.TurmaB, f.Davi)

	f.AnaPaymentID = uuid.New().String()
	db.AddPayment(billing.PaymentRecord{
		ID:          f.AnaPaymentID,
		StudentID:   f.Ana.ID,
		Amount:      decimal.NewFromInt(300),
		PaymentDate: time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC),
		Status:      billing.PaymentPaid,
	})
	db.AddPayment(billing.PaymentRecord{
		ID:          uuid.New().String(),
		StudentID:   f.Carla.ID,
		Amount:      decimal.NewFromInt(100),
		PaymentDate: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Status:      "Pago",
	})

	f.AdminID = uuid.New().String()
	db.AddAdmin(f.AdminID)
	return f
}
