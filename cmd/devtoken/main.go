// Command devtoken prints an HS256 access token for local testing with
// AUTH_MODE=jwt.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/lot-reservation/internal/identity"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "user id placed in the sub and userId claims")
	role := flag.String("role", "TENANT", "TENANT, LANDLORD or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to JWT_SECRET)")
	flag.Parse()

	r := identity.ParseRole(*role)
	if *user == "" || r == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -user <id> -role TENANT|LANDLORD|ADMIN [-ttl 1h] [-secret s]")
		os.Exit(2)
	}
	tok, exp, err := identity.IssueToken(*secret, *user, r, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
	fmt.Fprintln(os.Stderr, "expires", exp.Format(time.RFC3339))
}
