package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fixidiomas/backoffice/core"
)

const contextTokenKey = "userToken"

func newJWTConfig(secret string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secret),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(core.Claims),
	}
}

func getContextClaims(ctx echo.Context) (core.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*core.Claims); ok {
			return *claims, nil
		}
	}
	return core.Claims{}, errUnauthorized
}
