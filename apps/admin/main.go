package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
	emailsvc "github.com/fixidiomas/backoffice/services/email"
	logsvc "github.com/fixidiomas/backoffice/services/logger"
	"github.com/fixidiomas/backoffice/storage/cache"
	"github.com/fixidiomas/backoffice/storage/database"
	sqlxrepos "github.com/fixidiomas/backoffice/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	if conf.Debug {
		logger.Enable(false)
	}

	// set up DB
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	// set up services
	var reportCache billing.Cache
	if conf.Redis.Enabled {
		if rdb, err := cache.NewRedisConnection(conf.Redis); err != nil {
			logger.Warn(fmt.Sprintf("report cache disabled: %v", err), err)
		} else {
			reportCache = cache.NewReportCache(rdb, conf.Redis)
		}
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	billing.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:       conf,
		svc:        billing.NewService(sqlxrepos.NewBillingRepository(db), reportCache, mailSvc, logger, conf),
		mailSvc:    mailSvc,
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
		outFd:      int(os.Stdout.Fd()),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
