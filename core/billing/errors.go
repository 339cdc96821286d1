package billing

import "errors"

var (
	ErrInvalidMonth     = errors.New("invalid reference month")
	ErrInvalidAmount    = errors.New("negative amount")
	ErrAmbiguousDueDay  = errors.New("enrollments disagree on due day")
	ErrNotFound         = errors.New("record not found")
	ErrNoPaymentsToSave = errors.New("no payments to register")
	ErrInvalidStatus    = errors.New("payment status does not allow this action")
	ErrClassFull        = errors.New("class group is full")
)
