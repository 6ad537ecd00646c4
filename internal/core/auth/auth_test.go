package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecretID = "0190a4b1c2d3e4f5a6b7c8d9e0f1a2b3"

var testSecret = []byte(strings.Repeat("s", 32))

func TestParseAPIKey(t *testing.T) {
	nonce := strings.Repeat("a", 32)
	mac := strings.Repeat("b", 64)
	valid := keyPrefix + testSecretID + "-" + nonce + "-" + mac

	id, n, m, err := ParseAPIKey(valid)
	require.NoError(t, err)
	assert.Equal(t, testSecretID, id)
	assert.Equal(t, nonce, n)
	assert.Equal(t, mac, m)

	for name, key := range map[string]string{
		"empty":          "",
		"wrong prefix":   "es-v2-" + testSecretID + "-" + nonce + "-" + mac,
		"missing part":   keyPrefix + testSecretID + "-" + nonce,
		"short nonce":    keyPrefix + testSecretID + "-abc-" + mac,
		"uppercase hex":  keyPrefix + strings.ToUpper(testSecretID) + "-" + nonce + "-" + mac,
		"non hex mac":    keyPrefix + testSecretID + "-" + nonce + "-" + strings.Repeat("z", 64),
		"extra segments": valid + "-00",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := ParseAPIKey(key)
			assert.ErrorIs(t, err, ErrInvalidKeyFormat)
		})
	}
}

func TestGenerateAndAuthenticate(t *testing.T) {
	key, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, keyPrefix))

	other, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)
	assert.NotEqual(t, key, other, "each key carries a fresh nonce")

	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
	id, err := a.Authenticate(key)
	require.NoError(t, err)
	assert.Equal(t, testSecretID, id)
}

func TestAuthenticate_Rejects(t *testing.T) {
	key, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)

	t.Run("unknown secret", func(t *testing.T) {
		a := NewAuthenticator(map[string][]byte{})
		_, err := a.Authenticate(key)
		assert.ErrorIs(t, err, ErrUnknownKey)
	})

	t.Run("rotated secret", func(t *testing.T) {
		a := NewAuthenticator(map[string][]byte{testSecretID: []byte(strings.Repeat("r", 32))})
		_, err := a.Authenticate(key)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("tampered mac", func(t *testing.T) {
		last := key[len(key)-1]
		flipped := byte('0')
		if last == '0' {
			flipped = '1'
		}
		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
		_, err := a.Authenticate(key[:len(key)-1] + string(flipped))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("malformed", func(t *testing.T) {
		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
		_, err := a.Authenticate("not-a-key")
		assert.ErrorIs(t, err, ErrInvalidKeyFormat)
	})
}

func TestMiddleware(t *testing.T) {
	key, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)

	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret})
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
		errMsg string
	}{
		{"api key header", "X-API-Key", key, http.StatusNoContent, ""},
		{"bearer token", "Authorization", "Bearer " + key, http.StatusNoContent, ""},
		{"lowercase bearer", "Authorization", "bearer " + key, http.StatusNoContent, ""},
		{"missing", "", "", http.StatusUnauthorized, ErrMissingKey.Error()},
		{"basic auth ignored", "Authorization", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, ErrMissingKey.Error()},
		{"bad key", "X-API-Key", "es-v1-nope", http.StatusUnauthorized, ErrInvalidKeyFormat.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/decisions", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.errMsg != "" {
				assert.Contains(t, rec.Body.String(), tt.errMsg)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}
