// Package secure encrypts provider API tokens before they are persisted in
// the preferences table, so a copied budget file does not leak credentials.
package secure

import (
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
)

// TokenCipher wraps a fernet key for symmetric token encryption.
type TokenCipher struct {
	key *fernet.Key
}

// NewTokenCipher parses a base64 fernet key. An empty key is allowed and
// produces a nil cipher; callers treat that as "store tokens in plain text
// disabled" and refuse to persist credentials.
func NewTokenCipher(encodedKey string) (*TokenCipher, error) {
	if encodedKey == "" {
		return nil, nil
	}

	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fernet key: %w", err)
	}

	return &TokenCipher{key: key}, nil
}

// Encrypt seals a token for storage.
func (c *TokenCipher) Encrypt(token string) (string, error) {
	sealed, err := fernet.EncryptAndSign([]byte(token), c.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt token: %w", err)
	}
	return string(sealed), nil
}

// Decrypt opens a stored token. Tokens do not expire; TTL 0 disables the
// fernet timestamp check.
func (c *TokenCipher) Decrypt(sealed string) (string, error) {
	plain := fernet.VerifyAndDecrypt([]byte(sealed), time.Duration(0), []*fernet.Key{c.key})
	if plain == nil {
		return "", fmt.Errorf("failed to decrypt token: invalid or corrupted value")
	}
	return string(plain), nil
}
