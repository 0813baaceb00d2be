package main

import (
	"fmt"
	"log"

	"github.com/guidedtours/reservation-backend/internal/utils"
)

// Prints .env lines for the server's secrets. Pipe into a secrets store,
// never into a tracked file.
func main() {
	secrets, err := utils.ServiceSecrets()
	if err != nil {
		log.Fatalf("generate-secrets: %v", err)
	}
	for _, s := range secrets {
		fmt.Printf("# %s\n%s=%s\n", s.Note, s.Key, s.Value)
	}
}
