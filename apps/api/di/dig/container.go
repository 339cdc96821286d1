package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/fixidiomas/backoffice/apps/api/echo"
	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
	emailsvc "github.com/fixidiomas/backoffice/services/email"
	logsvc "github.com/fixidiomas/backoffice/services/logger"
	"github.com/fixidiomas/backoffice/storage/cache"
	"github.com/fixidiomas/backoffice/storage/database"
	sqlxrepos "github.com/fixidiomas/backoffice/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	if conf.Debug {
		logger.Enable(false)
	}
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	if conf.Debug {
		logger.Enable(false)
	}
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

// newCache returns nil when redis is disabled or unreachable; reports are then always recomputed.
func newCache(conf *core.Config, loggerParam DBLoggerParam) billing.Cache {
	if !conf.Redis.Enabled {
		return nil
	}
	rdb, err := cache.NewRedisConnection(conf.Redis)
	if err != nil {
		loggerParam.Logger.Warn(fmt.Sprintf("report cache disabled: %v", err), err)
		return nil
	}
	return cache.NewReportCache(rdb, conf.Redis)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newBillingService(svc *billing.Service) billing.ServiceInterface {
	return svc
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newDB))
	provideApp(c)

	return c
}

// provideApp registers everything built on top of the configuration and the database handle.
func provideApp(c *dig.Container) {
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newCache))
	must(c.Provide(newEmailService))
	must(c.Provide(sqlxrepos.NewBillingRepository))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(billing.NewService))
	must(c.Provide(newBillingService))
	must(c.Provide(echoapi.NewServer))
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
