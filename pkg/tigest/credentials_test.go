package tigest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialProvider_BrokerKey(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]interface{}{"apiKey": "broker-key"})
	}))
	defer server.Close()

	cp := NewCredentialProvider(&Config{BrokerURL: server.URL})

	key, agentErr := cp.APIKey(context.Background())
	require.Nil(t, agentErr)
	assert.Equal(t, "broker-key", key)

	// Second call is served from cache inside the default TTL.
	key, agentErr = cp.APIKey(context.Background())
	require.Nil(t, agentErr)
	assert.Equal(t, "broker-key", key)
	assert.Equal(t, 1, hits)
}

func TestCredentialProvider_StaticFallbackWhenBrokerFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cp := NewCredentialProvider(&Config{BrokerURL: server.URL, APIKey: "static-key"})

	key, agentErr := cp.APIKey(context.Background())
	require.Nil(t, agentErr)
	assert.Equal(t, "static-key", key)
}

func TestCredentialProvider_StaticOnly(t *testing.T) {
	cp := NewCredentialProvider(&Config{APIKey: "static-key"})

	key, agentErr := cp.APIKey(context.Background())
	require.Nil(t, agentErr)
	assert.Equal(t, "static-key", key)
}

func TestCredentialProvider_NoSourceFails(t *testing.T) {
	cp := NewCredentialProvider(&Config{})

	_, agentErr := cp.APIKey(context.Background())
	require.NotNil(t, agentErr)
	assert.Equal(t, ErrCodeCredential, agentErr.Code)
}

func TestCredentialProvider_ExpiredCacheRefetches(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"apiKey":    "broker-key",
			"expiresAt": time.Now().Add(30 * time.Second).UnixMilli(),
		})
	}))
	defer server.Close()

	cp := NewCredentialProvider(&Config{BrokerURL: server.URL})

	// Expiry is inside the refresh buffer, so every call refetches.
	_, agentErr := cp.APIKey(context.Background())
	require.Nil(t, agentErr)
	_, agentErr = cp.APIKey(context.Background())
	require.Nil(t, agentErr)
	assert.Equal(t, 2, hits)
}

func TestCredentialProvider_ClearDropsCache(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]interface{}{"apiKey": "broker-key"})
	}))
	defer server.Close()

	cp := NewCredentialProvider(&Config{BrokerURL: server.URL})

	_, _ = cp.APIKey(context.Background())
	cp.Clear()
	_, _ = cp.APIKey(context.Background())
	assert.Equal(t, 2, hits)
}

func TestTokenExpiry_ReadsJWTExpClaim(t *testing.T) {
	now := time.Now()
	exp := now.Add(2 * time.Hour).Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	assert.Equal(t, exp.Unix(), tokenExpiry(signed, now).Unix())
}

func TestTokenExpiry_OpaqueTokenGetsDefaultTTL(t *testing.T) {
	now := time.Now()
	got := tokenExpiry("not-a-jwt", now)
	assert.Equal(t, now.Add(DefaultKeyTTL).Unix(), got.Unix())
}

func TestStaticAPIKey(t *testing.T) {
	t.Setenv("TIGEST_API_KEY", "from-env")
	result := StaticAPIKey()
	require.True(t, result.Success)
	assert.Equal(t, "from-env", result.Data)

	t.Setenv("TIGEST_API_KEY", "")
	result = StaticAPIKey()
	require.False(t, result.Success)
	assert.Equal(t, ErrCodeCredential, result.Error.Code)
}
