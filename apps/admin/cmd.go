package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	svc        billing.ServiceInterface
	mailSvc    core.EmailService
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
	outFd      int
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  reconcile -month YYYY-MM [-status S] [-search Q] [-received MODE] [-json] - print the month report")
	_, _ = fmt.Fprintln(cli.out, "  upcoming [-days N] [-limit N] [-json] - print the dues of the next days")
	_, _ = fmt.Fprintln(cli.out, "  revenue [-until YYYY-MM] [-months N] [-json] - print billed against received revenue per month")
	_, _ = fmt.Fprintln(cli.out, "  generate -month YYYY-MM [-dry-run] - create the month's open charges")
	_, _ = fmt.Fprintln(cli.out, "  reminders -month YYYY-MM - email the payers of overdue lines")
	_, _ = fmt.Fprintln(cli.out, "  token -user UUID [-email EMAIL] [-ttl DURATION] - sign an access token for local use")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses args into fs; -h and parse failures become errHelp.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	return nil
}

// jsonOutput reports whether results should be printed as JSON: forced, or stdout is not a terminal.
func (cli *commandLine) jsonOutput(forced bool) bool {
	return forced || !isTerminalFunc(cli.outFd)
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	reconcileCmd := cli.newFlagSet("reconcile")
	reconcileMonth := reconcileCmd.String("month", "", "Reference month, YYYY-MM. Defaults to the current month.")
	reconcileStatus := reconcileCmd.String("status", "", "Only lines with this status: pending, overdue or paid.")
	reconcileSearch := reconcileCmd.String("search", "", "Only lines whose student, payer or email contains this text.")
	reconcileReceived := reconcileCmd.String("received", "", "Received figure: active-only (default) or all-payments.")
	reconcileJSON := reconcileCmd.Bool("json", false, "Print JSON even on a terminal.")

	upcomingCmd := cli.newFlagSet("upcoming")
	upcomingDays := upcomingCmd.Int("days", cli.conf.Billing.UpcomingDays, "Look-ahead window, in days.")
	upcomingLimit := upcomingCmd.Int("limit", cli.conf.Billing.UpcomingLimit, "Maximum number of lines; 0 means no limit.")
	upcomingJSON := upcomingCmd.Bool("json", false, "Print JSON even on a terminal.")

	revenueCmd := cli.newFlagSet("revenue")
	revenueUntil := revenueCmd.String("until", "", "Last month of the history, YYYY-MM. Defaults to the current month.")
	revenueMonths := revenueCmd.Int("months", billing.DefaultRevenueMonths, "Number of months.")
	revenueJSON := revenueCmd.Bool("json", false, "Print JSON even on a terminal.")

	generateCmd := cli.newFlagSet("generate")
	generateMonth := generateCmd.String("month", "", "Reference month, YYYY-MM.")
	generateDryRun := generateCmd.Bool("dry-run", false, "Only count the charges that would be created.")

	remindersCmd := cli.newFlagSet("reminders")
	remindersMonth := remindersCmd.String("month", "", "Reference month, YYYY-MM.")

	tokenCmd := cli.newFlagSet("token")
	tokenUser := tokenCmd.String("user", "", "The user's uuid (token subject).")
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenTTL := tokenCmd.Duration("ttl", time.Hour, "Token lifetime.")

	switch args[1] {
	case "reconcile":
		if err := parse(reconcileCmd, args[2:]); err != nil {
			return err
		}
		if *reconcileMonth == "" {
			*reconcileMonth = billing.MonthOf(cli.svc.Today()).String()
		}
		return cli.reconcile(billing.ReportQuery{
			Month:    *reconcileMonth,
			Status:   *reconcileStatus,
			Search:   *reconcileSearch,
			Received: *reconcileReceived,
		}, *reconcileJSON)
	case "upcoming":
		if err := parse(upcomingCmd, args[2:]); err != nil {
			return err
		}
		return cli.upcoming(*upcomingDays, *upcomingLimit, *upcomingJSON)
	case "revenue":
		if err := parse(revenueCmd, args[2:]); err != nil {
			return err
		}
		return cli.revenue(billing.RevenueQuery{Until: *revenueUntil, Months: *revenueMonths}, *revenueJSON)
	case "generate":
		if err := parse(generateCmd, args[2:]); err != nil {
			return err
		}
		if *generateMonth == "" {
			generateCmd.Usage()
			return errHelp
		}
		return cli.generate(*generateMonth, *generateDryRun)
	case "reminders":
		if err := parse(remindersCmd, args[2:]); err != nil {
			return err
		}
		if *remindersMonth == "" {
			remindersCmd.Usage()
			return errHelp
		}
		return cli.reminders(*remindersMonth)
	case "token":
		if err := parse(tokenCmd, args[2:]); err != nil {
			return err
		}
		if *tokenUser == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUser, *tokenEmail, *tokenTTL)
	default:
		cli.printUsage()
		return errHelp
	}
}
