package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// EnvSecret is one generated KEY=value line for a .env file.
type EnvSecret struct {
	Key   string
	Value string
	Note  string
}

// keys the server reads at startup; 32 random bytes each
var serviceSecretKeys = []EnvSecret{
	{Key: "JWT_SECRET", Note: "must match the identity service that issues staff tokens"},
	{Key: "QR_SIGNING_KEY", Note: "rotating it invalidates every QR payload already issued"},
}

const secretBytes = 32

// RandomToken returns n random bytes, base64url encoded without padding.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ServiceSecrets fills in a fresh value for every secret the server needs.
func ServiceSecrets() ([]EnvSecret, error) {
	out := make([]EnvSecret, len(serviceSecretKeys))
	for i, s := range serviceSecretKeys {
		v, err := RandomToken(secretBytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Key, err)
		}
		s.Value = v
		out[i] = s
	}
	return out, nil
}
