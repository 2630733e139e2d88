package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

// safetyMargin is subtracted from the token lifetime so a token is refreshed
// before it can expire mid-batch.
const safetyMargin = 5 * time.Minute

// Credential is one issued bearer token. Replaced wholesale on refresh,
// never mutated in place.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// tokenResponse maps the SATUSEHAT OAuth2 response body. expires_in is a
// string holding seconds, per the upstream API.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   string `json:"expires_in"`
}

// TokenCache obtains and caches the client-credentials bearer token.
// Concurrent callers during a refresh share one in-flight exchange via
// singleflight rather than each hitting the authorization endpoint.
type TokenCache struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	mu      sync.RWMutex
	current *Credential
	group   singleflight.Group

	// OnRefresh, when set, is invoked after each successful exchange.
	// Used to feed the token-refresh counter.
	OnRefresh func()

	// now is swappable in tests.
	now func() time.Time
}

func NewTokenCache(baseURL, clientID, clientSecret string, timeout time.Duration, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, reusing the cached credential while it
// is at least safetyMargin away from expiry. Fails wrapping domain.ErrAuth
// when the exchange returns a non-success status or a malformed body.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	if cred := tc.cached(); cred != nil {
		return cred.Token, nil
	}

	// Exactly one exchange may be in flight; latecomers reuse its result.
	v, err, _ := tc.group.Do("token", func() (any, error) {
		// A refresh that completed while this caller was queued is reused.
		if cred := tc.cached(); cred != nil {
			return cred, nil
		}
		return tc.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*Credential).Token, nil
}

func (tc *TokenCache) cached() *Credential {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tc.current != nil && tc.now().Before(tc.current.ExpiresAt.Add(-safetyMargin)) {
		return tc.current
	}
	return nil
}

func (tc *TokenCache) exchange(ctx context.Context) (*Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", tc.clientID)
	form.Set("client_secret", tc.clientSecret)

	endpoint := tc.baseURL + "/accesstoken?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrAuth, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: response contains no access_token", domain.ErrAuth)
	}

	ttlSeconds, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || ttlSeconds <= 0 {
		return nil, fmt.Errorf("%w: invalid expires_in %q", domain.ErrAuth, tr.ExpiresIn)
	}

	cred := &Credential{
		Token:     tr.AccessToken,
		ExpiresAt: tc.now().Add(time.Duration(ttlSeconds) * time.Second),
	}

	tc.mu.Lock()
	tc.current = cred
	tc.mu.Unlock()

	if tc.OnRefresh != nil {
		tc.OnRefresh()
	}

	tc.logger.Info("satusehat token refreshed",
		zap.Int("expires_in_seconds", ttlSeconds))

	return cred, nil
}
