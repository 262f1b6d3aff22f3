package secure_test

import (
	"testing"

	"github.com/avisser/budget-engine/internal/secure"
)

// A fixed 32-byte base64url fernet key for tests.
const testKey = "cw_0x689RpI-jtRR7oE8h_eQsKImvJapLeSbXpwF4e4="

// TestTokenCipher tests API token encryption.
//
// WHY: Provider credentials are stored in the preferences table; a stored
// token must decrypt back to itself and a tampered value must be rejected
// rather than returned as garbage.
func TestTokenCipher(t *testing.T) {
	t.Run("round trips a token", func(t *testing.T) {
		// Setup
		cipher, err := secure.NewTokenCipher(testKey)
		if err != nil {
			t.Fatalf("NewTokenCipher() failed: %v", err)
		}

		// Execute
		sealed, err := cipher.Encrypt("sk-live-abc123")
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		plain, err := cipher.Decrypt(sealed)

		// Assert
		if err != nil {
			t.Fatalf("Decrypt() returned unexpected error: %v", err)
		}
		if plain != "sk-live-abc123" {
			t.Errorf("Expected original token, got %q", plain)
		}
		if sealed == "sk-live-abc123" {
			t.Error("Expected ciphertext to differ from the token")
		}
	})

	t.Run("empty key yields a nil cipher", func(t *testing.T) {
		// Execute
		cipher, err := secure.NewTokenCipher("")

		// Assert
		if err != nil {
			t.Fatalf("NewTokenCipher() returned unexpected error: %v", err)
		}
		if cipher != nil {
			t.Error("Expected nil cipher for an empty key")
		}
	})

	t.Run("rejects an invalid key", func(t *testing.T) {
		// Execute
		_, err := secure.NewTokenCipher("not a fernet key")

		// Assert
		if err == nil {
			t.Error("Expected error for an invalid key")
		}
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		// Setup
		cipher, err := secure.NewTokenCipher(testKey)
		if err != nil {
			t.Fatalf("NewTokenCipher() failed: %v", err)
		}

		// Execute
		_, err = cipher.Decrypt("gAAAAABtampered")

		// Assert
		if err == nil {
			t.Error("Expected error for tampered ciphertext")
		}
	})
}
