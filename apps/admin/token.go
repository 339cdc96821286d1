package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fixidiomas/backoffice/core"
)

var errInvalidUserID = errors.New("user must be a uuid")

// token signs an access token with the API secret. Meant for local development only.
func (cli *commandLine) token(userID, email string, ttl time.Duration) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return errInvalidUserID
	}
	claims := core.NewClaims(cli.conf.AppName, id.String(), email, ttl)
	token, err := core.GenerateToken(cli.conf.SecretKey, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}
