// Command devtoken prints a fresh secret key or signs an access token
// the way the external auth service does. Useful for local runs and manual testing.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/tokenmanager"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)

	genSecret := fs.Bool("gen-secret", false, "Print a random secret key and exit")
	secretKey := fs.StringP("secret-key", "s", os.Getenv("SECRET_KEY"), "Secret key to sign the token with")
	account := fs.String("account", "", "Account id, random if empty")
	role := fs.String("role", string(models.RoleUser), "Caller role (user, admin)")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *genSecret {
		secret, err := newSecret()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, secret)
		return err
	}

	caller := models.Caller{Role: models.Role(*role)}
	switch caller.Role {
	case models.RoleUser, models.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}

	if *account == "" {
		caller.AccountID = uuid.New()
	} else {
		id, err := uuid.Parse(*account)
		if err != nil {
			return fmt.Errorf("invalid account id: %w", err)
		}
		caller.AccountID = id
	}

	if *secretKey == "" {
		return errors.New("secret key is required, use --secret-key or SECRET_KEY")
	}

	tm, err := tokenmanager.New(tokenmanager.Config{SecretKey: *secretKey, AccessTTL: *ttl})
	if err != nil {
		return err
	}

	token, err := tm.Issue(caller)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "account: %s\nexpires: %s\ntoken:   %s\n", caller.AccountID, token.ExpiresAt.Format(time.RFC3339), token.Value)
	return err
}

func newSecret() (string, error) {
	b := make([]byte, SecretKeyBytesLen)

	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
