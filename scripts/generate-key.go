//go:build ignore

// generate-key prints a fresh 32-byte ENCRYPTION_KEY for the refresh-token cipher,
// in both encodings ParseKey accepts.
//
//	go run scripts/generate-key.go
package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/hookrelay/hookrelay/internal/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Encryption Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nENCRYPTION_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
	fmt.Printf("\nHex form:        %s\n", hex.EncodeToString(key))
	fmt.Println("\nRotating this key invalidates every outstanding refresh token.")
	fmt.Println("==========================================================")
}
