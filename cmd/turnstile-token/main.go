// Command turnstile-token mints a scoped bearer token for an operator or a
// gate terminal, signed with the server's TURNSTILE_JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/turnstile/internal/auth"
	"github.com/BrandonDHaskell/turnstile/internal/config"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file read before the environment")
	subject := pflag.StringP("subject", "s", "", "token subject, recorded as the actor (required)")
	scopes := pflag.StringSlice("scopes", []string{auth.ScopeAccessCheck}, "comma-separated scopes, e.g. wallet:*,tokens:read")
	ttl := pflag.Duration("ttl", 0, "lifetime; 0 mints a token without expiry")
	pflag.Parse()

	if err := run(*envFile, *subject, *scopes, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "turnstile-token: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, subject string, scopes []string, ttl time.Duration) error {
	if strings.TrimSpace(subject) == "" {
		return fmt.Errorf("--subject is required")
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	signer, err := auth.NewSigner(cfg.JWTSecret)
	if err != nil {
		return err
	}
	tok, err := signer.Mint(subject, scopes, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
