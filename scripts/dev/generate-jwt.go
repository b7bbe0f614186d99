// Generates an admin token for the management API during development.
//
//	go run scripts/dev/generate-jwt.go -secret <jwtSecret>
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	secret  = flag.String("secret", "dev-secret", "management jwtSecret from the config")
	subject = flag.String("sub", "dev", "token subject")
	ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
)

func main() {
	flag.Parse()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   *subject,
		"scope": "admin",
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(*secret))
	if err != nil {
		log.Fatal("Failed to sign token:", err)
	}

	fmt.Println("Admin token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Use this token with:")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:9090/management/quota?identifier=1.2.3.4\n", tokenString)
}
