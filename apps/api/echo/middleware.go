package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fixidiomas/backoffice/core/billing"
)

// adminMiddleware lets through only the users the store recognizes as app admins.
func adminMiddleware(svc billing.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			ok, err := svc.IsAdmin(ctx.Request().Context(), claims.Subject)
			if err != nil {
				return errors.Wrap(err, "checking admin")
			}
			if !ok {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
