package echoapi

import (
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fixidiomas/backoffice/core"
	"github.com/fixidiomas/backoffice/core/billing"
)

var errMonthFormat = "must be a month formatted as YYYY-MM"

type (
	GenerateResponse struct {
		Created int  `json:"created"`
		DryRun  bool `json:"dry_run"`
	}

	RegisterResponse struct {
		Registered int `json:"registered"`
	}

	RemindersResponse struct {
		Queued int `json:"queued"`
	}
)

type billingApi struct {
	svc        billing.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
	conf       *core.Config
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, api billingApi) {
	admin := adminMiddleware(api.svc)

	bg := g.Group("/billing", jwt)
	bg.GET("/months/:month", api.monthReport)
	bg.GET("/upcoming", api.upcoming)
	bg.GET("/revenue", api.revenue)

	bg.POST("/months/:month/generate", api.generate, admin)
	bg.POST("/months/:month/payments", api.registerPayments, admin)
	bg.POST("/months/:month/reminders", api.sendReminders, admin)
	bg.POST("/payments/:id/mark-paid", api.markPaid, admin)
	bg.POST("/payments/:id/cancel", api.cancel, admin)

	tg := g.Group("/turmas", jwt)
	tg.POST("/:id/students", api.addEnrollment, admin)
}

// Handlers

func (api *billingApi) monthReport(ctx echo.Context) error {
	query := billing.ReportQuery{
		Month:    ctx.Param("month"),
		Status:   ctx.QueryParam("status"),
		Search:   ctx.QueryParam("search"),
		Received: ctx.QueryParam("received"),
	}
	month, filter, mode, err := query.Validate(api.validate)
	if err != nil {
		return err
	}

	report, err := api.svc.MonthReport(ctx.Request().Context(), month)
	if err != nil {
		return errors.Wrap(err, "getting month report")
	}
	return ctx.JSON(http.StatusOK, billing.NewReportView(report, filter, mode))
}

func (api *billingApi) upcoming(ctx echo.Context) error {
	var query billing.UpcomingQuery
	var err error
	if query.Days, err = intQueryParam(ctx, "days", api.conf.Billing.UpcomingDays); err != nil {
		return err
	}
	if query.Limit, err = intQueryParam(ctx, "limit", api.conf.Billing.UpcomingLimit); err != nil {
		return err
	}
	if err = api.validate.Struct(query); err != nil {
		return err
	}

	lines, err := api.svc.Upcoming(ctx.Request().Context(), query.Days, query.Limit)
	if err != nil {
		return errors.Wrap(err, "getting upcoming dues")
	}
	return ctx.JSON(http.StatusOK, lines)
}

func (api *billingApi) revenue(ctx echo.Context) error {
	query := billing.RevenueQuery{Until: ctx.QueryParam("until")}
	var err error
	if query.Months, err = intQueryParam(ctx, "months", billing.DefaultRevenueMonths); err != nil {
		return err
	}
	until, err := query.Validate(api.validate, billing.MonthOf(api.svc.Today()))
	if err != nil {
		return err
	}

	history, err := api.svc.RevenueHistory(ctx.Request().Context(), until, query.Months)
	if err != nil {
		return errors.Wrap(err, "getting revenue history")
	}
	return ctx.JSON(http.StatusOK, history)
}

func (api *billingApi) generate(ctx echo.Context) error {
	month, err := monthParam(ctx)
	if err != nil {
		return err
	}
	var data billing.GenerateMonth
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateMonth")
	}

	n, err := api.svc.GenerateMonth(ctx.Request().Context(), month, data.DryRun)
	if err != nil {
		return errors.Wrap(err, "generating month")
	}
	return ctx.JSON(http.StatusOK, GenerateResponse{Created: n, DryRun: data.DryRun})
}

func (api *billingApi) registerPayments(ctx echo.Context) error {
	month, err := monthParam(ctx)
	if err != nil {
		return err
	}
	var data billing.RegisterPayments
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterPayments")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = api.svc.RegisterPayments(ctx.Request().Context(), month, data.Payments); err != nil {
		return errors.Wrap(err, "registering payments")
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{Registered: len(data.Payments)})
}

func (api *billingApi) sendReminders(ctx echo.Context) error {
	month, err := monthParam(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.SendOverdueReminders(ctx.Request().Context(), month)
	if err != nil {
		return errors.Wrap(err, "sending overdue reminders")
	}
	return ctx.JSON(http.StatusOK, RemindersResponse{Queued: n})
}

func (api *billingApi) markPaid(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.MarkPaid(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "marking payment paid")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) cancel(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data billing.CancelPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CancelPayment")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	if err = api.svc.Cancel(ctx.Request().Context(), id, data.Note); err != nil {
		return errors.Wrap(err, "canceling payment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) addEnrollment(ctx echo.Context) error {
	turmaID, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data billing.AddEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddEnrollment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = api.svc.AddEnrollment(ctx.Request().Context(), turmaID, data.StudentID); err != nil {
		return errors.Wrap(err, "adding enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Helpers

func monthParam(ctx echo.Context) (billing.YearMonth, error) {
	month, err := billing.ParseYearMonth(ctx.Param("month"))
	if err != nil {
		return billing.YearMonth{}, core.NewValidationError(err, core.FieldError{Field: "month", Error: errMonthFormat})
	}
	return month, nil
}

// idParam returns the ":id" path parameter; anything but a uuid cannot match a record.
func idParam(ctx echo.Context) (string, error) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return "", errHttpNotFound
	}
	return id.String(), nil
}

func intQueryParam(ctx echo.Context, name string, def int) (int, error) {
	s := ctx.QueryParam(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, core.NewValidationError(err, core.FieldError{Field: name, Error: "must be an integer"})
	}
	return n, nil
}
