// Package main is a development utility for generating the secrets the server
// needs at startup: the hex-encoded AES-256 key for ENCRYPTION_KEY and a
// random value for CD_JWT_SECRET. It prints ready-to-paste export lines for a
// local .env. Do not reuse generated values across deployments.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	encKey := make([]byte, 32)
	if _, err := rand.Read(encKey); err != nil {
		log.Fatal(err)
	}

	jwtSecret := make([]byte, 48)
	if _, err := rand.Read(jwtSecret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Chatdeck Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport ENCRYPTION_KEY=%s\n", hex.EncodeToString(encKey))
	fmt.Printf("export CD_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(jwtSecret))
	fmt.Println("\n==========================================================")
}
