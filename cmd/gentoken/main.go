// gentoken issues a signed API token for a user, for development and
// operational tooling against an auth-enabled deployment.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"consensus-trading-bot/internal/auth"
)

func main() {
	userID := flag.String("user", "", "user ID to issue the token for")
	secret := flag.String("secret", os.Getenv("AUTH_JWT_SECRET"), "JWT signing secret")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: gentoken -user <id> [-secret <secret>] [-ttl <duration>]")
		os.Exit(1)
	}

	manager := auth.NewJWTManager(*secret, *ttl)
	token, err := manager.GenerateToken(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
