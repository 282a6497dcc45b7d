package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	apiKeyPrefix      = "fg_"
	apiKeyRandomBytes = 32
	// displayPrefixLen is how much of a key is stored in clear for display.
	displayPrefixLen = 11
)

var ErrInvalidAPIKeyFormat = errors.New("invalid API key format")

// APIKeyManager handles API key generation, hashing, and validation.
// Keys look like fg_<43 url-safe base64 chars>; only the SHA-256 is stored.
type APIKeyManager struct {
	prefix string
}

func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{prefix: apiKeyPrefix}
}

func (m *APIKeyManager) keyLength() int {
	return len(m.prefix) + base64.RawURLEncoding.EncodedLen(apiKeyRandomBytes)
}

// GenerateAPIKey returns the plaintext key (shown once) and its hash.
func (m *APIKeyManager) GenerateAPIKey() (plainKey, hash string, err error) {
	randomBytes := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plainKey = m.prefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return plainKey, hashKey(plainKey), nil
}

// HashAPIKey validates the key's shape and returns its hash.
func (m *APIKeyManager) HashAPIKey(plainKey string) (string, error) {
	if !strings.HasPrefix(plainKey, m.prefix) || len(plainKey) != m.keyLength() {
		return "", ErrInvalidAPIKeyFormat
	}
	return hashKey(plainKey), nil
}

// DisplayPrefix returns the leading characters kept for identification.
func (m *APIKeyManager) DisplayPrefix(plainKey string) string {
	if len(plainKey) < displayPrefixLen {
		return plainKey
	}
	return plainKey[:displayPrefixLen]
}

func hashKey(plainKey string) string {
	sum := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeHashCompare compares two hex digests without leaking timing.
func ConstantTimeHashCompare(hash1, hash2 string) bool {
	return subtle.ConstantTimeCompare([]byte(hash1), []byte(hash2)) == 1
}
