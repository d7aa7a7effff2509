package tigest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	// DefaultKeyTTL is assumed when the broker response carries no
	// usable expiry.
	DefaultKeyTTL = 10 * time.Minute

	// DefaultRefreshBuffer refreshes a cached key this long before it
	// actually expires.
	DefaultRefreshBuffer = 60 * time.Second
)

// StaticAPIKey returns the static fallback credential from the
// environment.
func StaticAPIKey() Result[string] {
	key := os.Getenv("TIGEST_API_KEY")
	if key != "" {
		return Ok(key)
	}
	return Err[string](NewCredentialError("TIGEST_API_KEY not set"))
}

// CredentialProvider supplies the backend access credential. It tries
// the dynamic broker first and falls back to a static key; session
// start fails when neither source yields one.
type CredentialProvider struct {
	brokerURL     string
	staticKey     string
	refreshBuffer time.Duration
	httpClient    *http.Client
	clock         Clock
	logger        *Logger

	mu     sync.Mutex
	cached *APIKey
}

func NewCredentialProvider(cfg *Config) *CredentialProvider {
	return &CredentialProvider{
		brokerURL:     cfg.BrokerURL,
		staticKey:     cfg.APIKey,
		refreshBuffer: DefaultRefreshBuffer,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		clock:         SystemClock(),
		logger:        GetGlobalLogger().WithComponent("credentials"),
	}
}

// APIKey returns a usable backend credential, consulting the broker
// first and the static fallback second.
func (cp *CredentialProvider) APIKey(ctx context.Context) (string, *AgentError) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.cached != nil && !cp.cached.Expired(cp.clock.Now(), cp.refreshBuffer) {
		return cp.cached.Key, nil
	}
	cp.cached = nil

	if cp.brokerURL != "" {
		key, err := cp.fetchFromBroker(ctx)
		if err == nil {
			cp.cached = key
			return key.Key, nil
		}
		cp.logger.WithError(err).Warn("Credential broker failed, trying static fallback")
	}

	if cp.staticKey != "" {
		return cp.staticKey, nil
	}

	return "", NewCredentialError("no credential available from broker or static fallback").
		AddDetail("broker_configured", cp.brokerURL != "")
}

func (cp *CredentialProvider) fetchFromBroker(ctx context.Context) (*APIKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cp.brokerURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cp.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker returned %s", resp.Status)
	}

	var body struct {
		APIKey    string `json:"apiKey"`
		ExpiresAt int64  `json:"expiresAt"` // optional, unix millis
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.APIKey == "" {
		return nil, fmt.Errorf("broker returned no apiKey")
	}

	key := &APIKey{Key: body.APIKey}
	switch {
	case body.ExpiresAt > 0:
		key.ExpiresAt = time.UnixMilli(body.ExpiresAt)
	default:
		key.ExpiresAt = tokenExpiry(body.APIKey, cp.clock.Now())
	}

	return key, nil
}

// tokenExpiry extracts the exp claim when the broker hands back a JWT.
// The signature is the broker's concern; only the expiry matters here.
func tokenExpiry(token string, now time.Time) time.Time {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return now.Add(DefaultKeyTTL)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return now.Add(DefaultKeyTTL)
	}
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		return time.Unix(int64(exp), 0)
	}
	return now.Add(DefaultKeyTTL)
}

// Clear drops the cached credential.
func (cp *CredentialProvider) Clear() {
	cp.mu.Lock()
	cp.cached = nil
	cp.mu.Unlock()
}
