// Package main prints the bcrypt hash of a password, for seeding a users row by
// hand without going through POST /auth/register. The hash uses the same cost the
// server applies by default.
//
//	go run ./cmd/hash 'correct horse battery staple'
package main

import (
	"fmt"
	"os"

	"github.com/hookrelay/hookrelay/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(2)
	}

	hash, err := auth.HashPassword(os.Args[1], auth.BcryptCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
