package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fixidiomas/backoffice/core/billing"
)

func (cli *commandLine) generate(rawMonth string, dryRun bool) error {
	month, err := billing.ParseYearMonth(rawMonth)
	if err != nil {
		return err
	}
	n, err := cli.svc.GenerateMonth(context.Background(), month, dryRun)
	if err != nil {
		return errors.Wrap(err, "generating month")
	}
	if dryRun {
		_, _ = fmt.Fprintf(cli.out, "%d charges would be created for %s\n", n, month)
	} else {
		_, _ = fmt.Fprintf(cli.out, "%d charges created for %s\n", n, month)
	}
	return nil
}

func (cli *commandLine) reminders(rawMonth string) error {
	month, err := billing.ParseYearMonth(rawMonth)
	if err != nil {
		return err
	}
	n, err := cli.svc.SendOverdueReminders(context.Background(), month)
	if err != nil {
		return errors.Wrap(err, "sending overdue reminders")
	}
	cli.mailSvc.Wait()
	_, _ = fmt.Fprintf(cli.out, "%d reminders sent for %s\n", n, month)
	return nil
}
