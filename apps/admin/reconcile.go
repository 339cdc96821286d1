package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
)

const dateFmt = "2006-01-02"

func (cli *commandLine) reconcile(query billing.ReportQuery, forceJSON bool) error {
	month, filter, mode, err := query.Validate(cli.validate)
	if err != nil {
		return core.TranslateErrors(err, cli.translator)
	}

	report, err := cli.svc.MonthReport(context.Background(), month)
	if err != nil {
		return errors.Wrap(err, "getting month report")
	}
	view := billing.NewReportView(report, filter, mode)
	report = view.Report

	if cli.jsonOutput(forceJSON) {
		return cli.printJSON(view)
	}

	_, _ = fmt.Fprintf(cli.out, "Month %s (today %s)\n\n", report.Month, report.Today.Format(dateFmt))
	if err = cli.printLines(report.Lines); err != nil {
		return err
	}

	t := report.Totals
	_, _ = fmt.Fprintln(cli.out)
	_, _ = fmt.Fprintf(cli.out, "Billed: %s | Received (%s): %s | Pending: %s | Overdue: %s | Annual projection: %s\n",
		t.Billed.StringFixed(2), mode, t.Received(mode).StringFixed(2), t.Pending.StringFixed(2),
		t.Overdue.StringFixed(2), t.AnnualProjection.StringFixed(2))
	_, _ = fmt.Fprintf(cli.out, "Students: %d active | %d paid | %d pending | %d overdue\n",
		t.ActiveStudents, t.PaidCount, t.PendingCount, t.OverdueCount)

	if len(report.Issues) > 0 {
		_, _ = fmt.Fprintf(cli.out, "\n%d records flagged:\n", len(report.Issues))
		for _, is := range report.Issues {
			_, _ = fmt.Fprintf(cli.out, "  [%s] %s\n", is.Kind, is.Message)
		}
	}
	return nil
}

func (cli *commandLine) upcoming(days, limit int, forceJSON bool) error {
	if err := cli.validate.Struct(billing.UpcomingQuery{Days: days, Limit: limit}); err != nil {
		return core.TranslateErrors(err, cli.translator)
	}
	lines, err := cli.svc.Upcoming(context.Background(), days, limit)
	if err != nil {
		return errors.Wrap(err, "getting upcoming dues")
	}
	if cli.jsonOutput(forceJSON) {
		return cli.printJSON(lines)
	}
	if len(lines) == 0 {
		_, _ = fmt.Fprintf(cli.out, "Nothing due in the next %d days.\n", days)
		return nil
	}
	return cli.printLines(lines)
}

func (cli *commandLine) revenue(query billing.RevenueQuery, forceJSON bool) error {
	until, err := query.Validate(cli.validate, billing.MonthOf(cli.svc.Today()))
	if err != nil {
		return core.TranslateErrors(err, cli.translator)
	}
	history, err := cli.svc.RevenueHistory(context.Background(), until, query.Months)
	if err != nil {
		return errors.Wrap(err, "getting revenue history")
	}
	if cli.jsonOutput(forceJSON) {
		return cli.printJSON(history)
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MONTH	BILLED	RECEIVED")
	for _, r := range history {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Month, r.Billed.StringFixed(2), r.ReceivedAll.StringFixed(2))
	}
	return errors.Wrap(w.Flush(), "writing table")
}

func (cli *commandLine) printLines(lines []billing.ReconciledLine) error {
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STUDENT\tPAYER\tDUE DATE\tDUE\tPAID\tBALANCE\tSTATUS\tDAYS OVERDUE")
	for _, l := range lines {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			l.StudentName, l.PayerName, l.DueDate.Format(dateFmt),
			l.AmountDue.StringFixed(2), l.AmountPaid.StringFixed(2), l.Balance.StringFixed(2),
			l.Status, l.DaysOverdue)
	}
	return errors.Wrap(w.Flush(), "writing table")
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encoding json")
}
