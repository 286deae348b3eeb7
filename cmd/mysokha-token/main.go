package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"mysokha/internal/cli"
	"mysokha/internal/config"
	"mysokha/internal/identity"
	"mysokha/internal/log"
)

// mysokha-token signs an identity token for a household member. The token
// goes into the mysokha_token cookie or an Authorization bearer header.
func main() {
	subject := flag.String("subject", "", "identity recorded as addedBy")
	ttl := flag.Duration("ttl", 0, "token lifetime, 0 for no expiry")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentIdentity)

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: mysokha-token -subject name [-ttl 720h]")
		os.Exit(2)
	}
	if cfg.IdentitySecret == "" {
		logger.Error("IDENTITY_SECRET is not set")
		os.Exit(1)
	}

	v := identity.NewVerifier(cfg.IdentitySecret, "", logger)
	tok, err := v.Issue(*subject, *ttl)
	if err != nil {
		logger.Error("Signing token failed", log.FieldError, err)
		os.Exit(1)
	}
	if _, err := v.Verify(tok); err != nil {
		logger.Error("Issued token does not verify", log.FieldError, err)
		os.Exit(1)
	}

	fmt.Println(tok)
	if *ttl > 0 {
		fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	}
}
