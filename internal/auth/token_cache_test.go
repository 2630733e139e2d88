package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"go.uber.org/zap"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

const tokenURL = "https://auth.example.test/accesstoken"

func newTestCache(t *testing.T) *TokenCache {
	t.Helper()
	tc := NewTokenCache("https://auth.example.test", "client-id", "client-secret", 5*time.Second, zap.NewNop())
	httpmock.ActivateNonDefault(tc.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return tc
}

func tokenResponder(token, expiresIn string) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

func TestTokenCache_ReusesCachedToken(t *testing.T) {
	tc := newTestCache(t)
	httpmock.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("tok-1", "3600"))

	ctx := context.Background()
	first, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != "tok-1" || second != "tok-1" {
		t.Fatalf("expected tok-1 both times, got %q and %q", first, second)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Fatalf("expected exactly one exchange, got %d", n)
	}
}

func TestTokenCache_RefreshesInsideSafetyMargin(t *testing.T) {
	tc := newTestCache(t)
	httpmock.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("tok-1", "3600"))

	now := time.Now()
	tc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := tc.Token(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Advance to within the 5-minute safety margin of expiry.
	now = now.Add(3600*time.Second - 4*time.Minute)
	httpmock.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("tok-2", "3600"))

	token, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok-2" {
		t.Fatalf("expected a refreshed token, got %q", token)
	}
	if n := httpmock.GetTotalCallCount(); n != 2 {
		t.Fatalf("expected exactly two exchanges, got %d", n)
	}
}

func TestTokenCache_ConcurrentCallersShareOneExchange(t *testing.T) {
	tc := newTestCache(t)
	httpmock.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("tok-1", "3600"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tc.Token(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	// singleflight may let a couple of exchanges through under extreme
	// interleaving, but a refresh storm (one per caller) must not happen.
	if n := httpmock.GetTotalCallCount(); n > 2 {
		t.Fatalf("expected at most 2 exchanges for 10 concurrent callers, got %d", n)
	}
}

func TestTokenCache_NonSuccessStatusIsAuthError(t *testing.T) {
	tc := newTestCache(t)
	httpmock.RegisterResponder(http.MethodPost, tokenURL,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"invalid_client"}`))

	_, err := tc.Token(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestTokenCache_MalformedBodyIsAuthError(t *testing.T) {
	tc := newTestCache(t)
	httpmock.RegisterResponder(http.MethodPost, tokenURL,
		httpmock.NewStringResponder(http.StatusOK, `{"access_token":""}`))

	_, err := tc.Token(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestTokenCache_InvalidExpiresInIsAuthError(t *testing.T) {
	tc := newTestCache(t)
	httpmock.RegisterResponder(http.MethodPost, tokenURL, tokenResponder("tok-1", "soon"))

	_, err := tc.Token(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}
