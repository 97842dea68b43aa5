package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"academy/internal/auth"
	"academy/internal/config"
	"academy/internal/model"
)

// devtoken prints a bearer token for local testing against the api.
func main() {
	email := flag.String("email", "", "actor email (token subject)")
	name := flag.String("name", "", "display name")
	role := flag.String("role", model.RoleStudent, "student, trainer or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime (default ACCESS_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Production() {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with APP_ENV=production")
		os.Exit(1)
	}
	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch *role {
	case model.RoleStudent, model.RoleTrainer, model.RoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	lifetime := cfg.AccessTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, exp, err := auth.Issue(*email, *name, *role, cfg.JWTIssuer, cfg.JWTSigningKey, lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
}
