package billing

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fixidiomas/backoffice/core"
)

var (
	yearMonthTag  = "yearmonth"
	yearMonthText = "must be a month formatted as YYYY-MM"

	lineStatusTag  = "linestatus"
	lineStatusText = "must be one of pending, overdue, paid or all"

	receivedModeTag  = "receivedmode"
	receivedModeText = "must be one of active-only or all-payments"
)

// InitValidators registers the billing validation tags and their messages.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.MustRegister(yearMonthTag, validate.RegisterValidation(yearMonthTag, yearMonthValidation))
	core.RegisterCustomTranslation(validate, translator, yearMonthTag, yearMonthText)

	core.MustRegister(lineStatusTag, validate.RegisterValidation(lineStatusTag, lineStatusValidation))
	core.RegisterCustomTranslation(validate, translator, lineStatusTag, lineStatusText)

	core.MustRegister(receivedModeTag, validate.RegisterValidation(receivedModeTag, receivedModeValidation))
	core.RegisterCustomTranslation(validate, translator, receivedModeTag, receivedModeText)
}

func yearMonthValidation(fl validator.FieldLevel) bool {
	_, err := ParseYearMonth(fl.Field().String())
	return err == nil
}

func lineStatusValidation(fl validator.FieldLevel) bool {
	_, ok := ParseLineStatus(fl.Field().String())
	return ok
}

func receivedModeValidation(fl validator.FieldLevel) bool {
	_, ok := ParseReceivedMode(fl.Field().String())
	return ok
}

// ReportQuery holds the raw parameters of a month report request.
type ReportQuery struct {
	Month    string `json:"month" validate:"required,yearmonth"`
	Status   string `json:"status" validate:"omitempty,linestatus"`
	Search   string `json:"search"`
	Received string `json:"received" validate:"omitempty,receivedmode"`
}

// Validate checks the query and returns the parsed month and line filter.
func (q *ReportQuery) Validate(validate *validator.Validate) (YearMonth, LineFilter, ReceivedMode, error) {
	q.Month = core.CleanString(q.Month)
	q.Search = core.CleanString(q.Search)
	if err := validate.Struct(q); err != nil {
		return YearMonth{}, LineFilter{}, "", err
	}
	month, _ := ParseYearMonth(q.Month)
	status, _ := ParseLineStatus(q.Status)
	mode, _ := ParseReceivedMode(q.Received)
	return month, LineFilter{Status: status, Search: q.Search}, mode, nil
}

type UpcomingQuery struct {
	Days  int `json:"days" validate:"min=0,max=31"`
	Limit int `json:"limit" validate:"min=0,max=100"`
}

// RevenueQuery holds the raw parameters of a revenue history request. An empty Until is the current month.
type RevenueQuery struct {
	Until  string `json:"until" validate:"omitempty,yearmonth"`
	Months int    `json:"months" validate:"min=0,max=24"`
}

// Validate checks the query and returns the last month of the history, defaulting to current.
func (q *RevenueQuery) Validate(validate *validator.Validate, current YearMonth) (YearMonth, error) {
	q.Until = core.CleanString(q.Until)
	if err := validate.Struct(q); err != nil {
		return YearMonth{}, err
	}
	if q.Until == "" {
		return current, nil
	}
	return ParseYearMonth(q.Until)
}

func (rp *RegisterPayments) Validate(validate *validator.Validate) error {
	for i := range rp.Payments {
		rp.Payments[i].StudentID = core.CleanString(rp.Payments[i].StudentID, true /* lower */)
	}
	return validate.Struct(rp)
}

func (ae *AddEnrollment) Validate(validate *validator.Validate) error {
	ae.StudentID = core.CleanString(ae.StudentID, true /* lower */)
	return validate.Struct(ae)
}
