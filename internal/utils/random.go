package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RandomString returns a base64url string built from n bytes of crypto/rand.
func RandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
