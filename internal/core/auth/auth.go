// Package auth provides HMAC-signed API key authentication for the admin
// HTTP API.
//
// Keys are self-validating: the MAC inside the key is checked against the
// secret named by the key's secret ID, so no key storage is needed. Rotating
// a secret out of the environment revokes every key it signed.
package auth

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// Authenticator validates API keys against a set of signing secrets.
type Authenticator struct {
	secrets map[string][]byte
}

// NewAuthenticator creates an authenticator for secrets keyed by secret ID.
func NewAuthenticator(secrets map[string][]byte) *Authenticator {
	return &Authenticator{secrets: secrets}
}

// Authenticate validates key and returns its secret ID.
func (a *Authenticator) Authenticate(key string) (string, error) {
	secretID, nonce, mac, err := ParseAPIKey(key)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	given, err := hex.DecodeString(mac)
	if err != nil {
		return "", ErrInvalidKeyFormat
	}
	if !VerifyHMAC(ComputeHMAC(secret, secretID, nonce), given) {
		return "", ErrInvalidKey
	}
	return secretID, nil
}

// Middleware rejects requests without a valid key with 401.
// The key is read from X-API-Key or an "Authorization: Bearer" header.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestKey(r)
		if key == "" {
			unauthorized(w, ErrMissingKey)
			return
		}
		if _, err := a.Authenticate(key); err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="emailsieve"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
