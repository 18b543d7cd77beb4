package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/arklim/continuous-auth/internal/infra/config"
	"github.com/arklim/continuous-auth/internal/infra/security"
)

// Mints an operator access token for the admin API using the configured
// signing secret. Intended for local development and ops tooling.
func main() {
	subject := flag.String("subject", "operator", "token subject")
	role := flag.String("role", "operator", "token role (operator or admin)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Operator.JWTSecret == "" {
		log.Fatal("AUTHD_OPERATOR_JWT_SECRET is not set")
	}

	mgr, err := security.NewOperatorTokenManager(cfg.Operator.JWTSecret, cfg.Operator.JWTIssuer, cfg.Operator.TokenTTL)
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	token, err := mgr.Issue(*subject, *role)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Println(token)
}
