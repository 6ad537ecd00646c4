package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key format: es-v1-<secret_id>-<nonce>-<mac>
//
//	secret_id  32 hex chars, names the signing secret
//	nonce      32 hex chars of randomness
//	mac        64 hex chars, HMAC-SHA256(secret, secret_id + nonce)
const keyPrefix = "es-v1-"

// ParseAPIKey splits key into secret ID, nonce and MAC.
// Returns ErrInvalidKeyFormat if the format doesn't match.
func ParseAPIKey(key string) (secretID, nonce, mac string, err error) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", "", "", ErrInvalidKeyFormat
	}
	parts := strings.Split(strings.TrimPrefix(key, keyPrefix), "-")
	if len(parts) != 3 {
		return "", "", "", ErrInvalidKeyFormat
	}
	secretID, nonce, mac = parts[0], parts[1], parts[2]

	if len(secretID) != 32 || len(nonce) != 32 || len(mac) != 64 {
		return "", "", "", ErrInvalidKeyFormat
	}
	for _, c := range secretID + nonce + mac {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", "", ErrInvalidKeyFormat
		}
	}
	return secretID, nonce, mac, nil
}

// ComputeHMAC signs secretID and nonce with secret.
func ComputeHMAC(secret []byte, secretID, nonce string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(secretID))
	h.Write([]byte(nonce))
	return h.Sum(nil)
}

// VerifyHMAC compares two MACs in constant time.
func VerifyHMAC(expected, computed []byte) bool {
	return hmac.Equal(expected, computed)
}

// FormatAPIKey assembles a key from its components.
func FormatAPIKey(secretID, nonce string, mac []byte) string {
	return fmt.Sprintf("%s%s-%s-%s", keyPrefix, secretID, nonce, hex.EncodeToString(mac))
}

// GenerateAPIKey mints a new key signed by secret.
func GenerateAPIKey(secretID string, secret []byte) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	return FormatAPIKey(secretID, nonce, ComputeHMAC(secret, secretID, nonce)), nil
}
