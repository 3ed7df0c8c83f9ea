package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/wishroom/internal/auth"
)

// TokenCmd issues a signed service token for a front-end, billing or admin client.
type TokenCmd struct {
	Subject   string        `arg:"" help:"name of the client the token is issued to"`
	Role      string        `help:"role granted to the token" default:"frontend" enum:"frontend,billing,admin"`
	TTL       time.Duration `help:"token lifetime" default:"720h"`
	JWTSecret string        `help:"HMAC secret used to sign service tokens" env:"WISHROOM_JWT_SECRET"`
}

func (c *TokenCmd) Run(globals *Globals) error {
	if c.JWTSecret == "" {
		return errors.New("signing secret is required (--jwt-secret or WISHROOM_JWT_SECRET)")
	}
	role, err := auth.ParseRole(c.Role)
	if err != nil {
		return err
	}

	token, err := auth.IssueToken([]byte(c.JWTSecret), c.Subject, role, c.TTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	_, err = fmt.Fprintln(os.Stdout, token)
	return err
}
