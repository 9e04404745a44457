// Command admintoken mints bearer tokens for local operation of the payouts
// service. It reads the same JWT_SECRET the service does.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/joho/godotenv"
	"go-payouts/internal/payouts"
	"go-payouts/pkg/jwtfactory"
)

const jwtSecretEnv = "JWT_SECRET"

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "Token subject, the operator or user identity")
	role := flag.String("role", payouts.AdminRole, "Role claim")
	secret := flag.String("secret", "secret", "HS256 secret")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if valStr, ok := os.LookupEnv(jwtSecretEnv); ok {
		*secret = valStr
	}
	if *subject == "" {
		log.Fatal("-sub is required")
	}

	tokenAuth := jwtauth.New("HS256", []byte(*secret), nil)
	token, err := jwtfactory.New(tokenAuth, *ttl).Generate(*subject, *role)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
