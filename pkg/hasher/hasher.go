package hasher

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const cost = 10

// HashToken returns the bcrypt hash stored in configuration for an API token.
func HashToken(token []byte) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(token, cost)
	return string(bytes), err
}

// TokenMatches reports whether token hashes to hash. Surrounding whitespace
// on either side is ignored.
func TokenMatches(token, hash string) bool {
	token, hash = strings.TrimSpace(token), strings.TrimSpace(hash)
	if token == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// GenerateToken returns a URL-safe random token of length random bytes.
func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
