// Command gen-admin-hash prints a bcrypt hash suitable for the
// ADMIN_PASSWORD_HASH environment variable.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spec-kit/support-bot/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}

	hash, err := auth.HashPassword(os.Args[1], 12)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
