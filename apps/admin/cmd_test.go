package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
	emailsvc "github.com/fixidiomas/backoffice/services/email"
	"github.com/fixidiomas/backoffice/storage/database/inmem"
	testutil "github.com/fixidiomas/backoffice/tests"
)

type cliEnv struct {
	cli     *commandLine
	db      *inmemdb.DB
	mailSvc *emailsvc.ConsoleServiceMock
	out     *bytes.Buffer
	fixture testutil.Fixture
}

func setup(t *testing.T, terminal bool) *cliEnv {
	billing.NowFunc = func() time.Time { return time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC) }
	isTerminalFunc = func(int) bool { return terminal }
	t.Cleanup(func() {
		billing.NowFunc = time.Now
		isTerminalFunc = func(int) bool { return false }
	})

	conf := testutil.NewTestConfig()
	logger := new(testutil.Logger)
	db := inmemdb.Open()
	fixture := testutil.SeedSchool(t, db)

	core.ParseEmailTemplates(conf, logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	billing.InitValidators(validate, translator)

	out := new(bytes.Buffer)
	return &cliEnv{
		cli: &commandLine{
			conf:       conf,
			svc:        billing.NewService(inmemdb.NewBillingRepository(db), nil, mailSvc, logger, conf),
			mailSvc:    mailSvc,
			validate:   validate,
			translator: translator,
			out:        out,
		},
		db:      db,
		mailSvc: mailSvc,
		out:     out,
		fixture: fixture,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (env *cliEnv) runAll(t *testing.T, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := env.cli.run(args)
			switch {
			case tt.wantErr != nil:
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}
}

func Test_commandLine_help(t *testing.T) {
	env := setup(t, true)

	env.runAll(t, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "-h", args: []string{"reconcile", "-h"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"generate", "-lol"}, wantErr: errHelp},
		{name: "generate: no month", args: []string{"generate"}, wantErr: errHelp},
		{name: "reminders: no month", args: []string{"reminders"}, wantErr: errHelp},
		{name: "token: no user", args: []string{"token"}, wantErr: errHelp},
	})
	assert.Contains(t, env.out.String(), "Usage:")
}

func Test_commandLine_reconcile(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		env := setup(t, true)
		require.NoError(t, env.cli.run([]string{"admin", "reconcile"}))

		out := env.out.String()
		assert.Contains(t, out, "Month 2025-03 (today 2025-03-15)")
		assert.Contains(t, out, "STUDENT")
		for _, name := range []string{"Ana Souza", "Bruno Lima", "Davi Rocha"} {
			assert.Contains(t, out, name)
		}
		assert.NotContains(t, out, "Carla Dias")
		assert.Contains(t, out, "Billed: 850.00 | Received (active-only): 300.00 | Pending: 550.00 | Overdue: 250.00 | Annual projection: 10200.00")
		assert.Contains(t, out, "Students: 3 active | 1 paid | 1 pending | 1 overdue")
		assert.Less(t, strings.Index(out, "Ana Souza"), strings.Index(out, "Bruno Lima"))
	})

	t.Run("json when piped", func(t *testing.T) {
		env := setup(t, false)
		require.NoError(t, env.cli.run([]string{"admin", "reconcile", "-month", "2025-03", "-status", "overdue", "-received", "all-payments"}))

		var resp billing.ReportView
		require.NoError(t, json.Unmarshal(env.out.Bytes(), &resp))
		require.Len(t, resp.Lines, 1)
		assert.Equal(t, "Davi Rocha", resp.Lines[0].StudentName)
		assert.Equal(t, billing.ReceivedAllPayments, resp.ReceivedMode)
		assert.True(t, resp.Received.Equal(resp.Totals.ReceivedAll))
	})

	t.Run("forced json", func(t *testing.T) {
		env := setup(t, true)
		require.NoError(t, env.cli.run([]string{"admin", "reconcile", "-json", "-search", "ana"}))

		var resp billing.ReportView
		require.NoError(t, json.Unmarshal(env.out.Bytes(), &resp))
		require.Len(t, resp.Lines, 1)
		assert.Equal(t, env.fixture.Ana.ID, resp.Lines[0].StudentID)
	})

	t.Run("invalid month", func(t *testing.T) {
		env := setup(t, true)
		err := env.cli.run([]string{"admin", "reconcile", "-month", "2025-13"})
		vErr, ok := err.(*core.ValidationError)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, map[string]string{"month": "must be a month formatted as YYYY-MM"}, vErr.FieldMap())
	})
}

func Test_commandLine_upcoming(t *testing.T) {
	env := setup(t, true)

	require.NoError(t, env.cli.run([]string{"admin", "upcoming"}))
	assert.Contains(t, env.out.String(), "Bruno Lima")
	assert.NotContains(t, env.out.String(), "Davi Rocha")

	env.out.Reset()
	require.NoError(t, env.cli.run([]string{"admin", "upcoming", "-days", "3"}))
	assert.Equal(t, "Nothing due in the next 3 days.\n", env.out.String())

	err := env.cli.run([]string{"admin", "upcoming", "-days", "40"})
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	assert.Contains(t, vErr.FieldMap(), "days")
}

func Test_commandLine_revenue(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		env := setup(t, true)
		require.NoError(t, env.cli.run([]string{"admin", "revenue", "-until", "2025-03", "-months", "3"}))

		out := env.out.String()
		assert.Contains(t, out, "MONTH")
		assert.NotContains(t, out, "2024-12")
		assert.Less(t, strings.Index(out, "2025-01"), strings.Index(out, "2025-03"))
		assert.Regexp(t, `2025-03\s+850.00\s+400.00`, out)
		assert.Regexp(t, `2025-02\s+850.00\s+0.00`, out)
	})

	t.Run("json defaults", func(t *testing.T) {
		env := setup(t, false)
		require.NoError(t, env.cli.run([]string{"admin", "revenue"}))

		var history []billing.MonthRevenue
		require.NoError(t, json.Unmarshal(env.out.Bytes(), &history))
		require.Len(t, history, billing.DefaultRevenueMonths)
		assert.Equal(t, billing.YearMonth{Year: 2024, Month: time.October}, history[0].Month)
		assert.Equal(t, billing.YearMonth{Year: 2025, Month: time.March}, history[5].Month)
	})

	t.Run("invalid until", func(t *testing.T) {
		env := setup(t, true)
		err := env.cli.run([]string{"admin", "revenue", "-until", "march"})
		vErr, ok := err.(*core.ValidationError)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, map[string]string{"until": "must be a month formatted as YYYY-MM"}, vErr.FieldMap())
	})
}

func Test_commandLine_generate(t *testing.T) {
	env := setup(t, true)
	march := billing.YearMonth{Year: 2025, Month: time.March}

	env.runAll(t, []cliTest{
		{name: "invalid month", args: []string{"generate", "-month", "03/2025"}, wantErr: billing.ErrInvalidMonth},
		{name: "dry run", args: []string{"generate", "-month", "2025-03", "-dry-run"}},
	})
	assert.Contains(t, env.out.String(), "3 charges would be created for 2025-03")
	assert.Empty(t, env.db.ChargeIDs(march))

	env.out.Reset()
	require.NoError(t, env.cli.run([]string{"admin", "generate", "-month", "2025-03"}))
	assert.Equal(t, "3 charges created for 2025-03\n", env.out.String())
	assert.Len(t, env.db.ChargeIDs(march), 3)
}

func Test_commandLine_reminders(t *testing.T) {
	env := setup(t, true)

	require.NoError(t, env.cli.run([]string{"admin", "reminders", "-month", "2025-03"}))
	assert.Equal(t, "1 reminders sent for 2025-03\n", env.out.String())

	sent := env.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, env.fixture.Davi.PayerEmail, sent[0].To[0].Address)
}

func Test_commandLine_token(t *testing.T) {
	env := setup(t, true)

	env.runAll(t, []cliTest{
		{name: "invalid user", args: []string{"token", "-user", "admin"}, wantErr: errInvalidUserID},
	})

	require.NoError(t, env.cli.run([]string{"admin", "token", "-user", env.fixture.AdminID, "-email", "admin@example.com", "-ttl", "10m"}))

	claims := new(core.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(env.out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(env.cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, env.fixture.AdminID, claims.Subject)
	assert.Equal(t, "admin@example.com", claims.Email)
}
