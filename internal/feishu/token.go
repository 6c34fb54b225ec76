package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lojasmm/feishubot/internal/metrics"
)

const (
	tenantTokenPath = "/open-apis/auth/v3/tenant_access_token/internal/"
	// A cached token is dropped this long before the platform says it expires.
	tokenExpiryMargin = time.Minute
)

// AccessToken is a tenant access token and its validity window. ExpiresAt is
// zero when the platform declared no lifetime; such tokens are never cached.
type AccessToken struct {
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

func (t *AccessToken) usable(now time.Time) bool {
	return t != nil && !t.ExpiresAt.IsZero() && now.Before(t.ExpiresAt)
}

// TokenFetcher mints tenant access tokens, optionally caching them.
type TokenFetcher struct {
	baseURL   string
	appID     string
	appSecret string
	cache     bool
	http      *http.Client
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cached *AccessToken
}

func NewTokenFetcher(baseURL, appID, appSecret string, cache bool, log zerolog.Logger) *TokenFetcher {
	return &TokenFetcher{
		baseURL:   baseURL,
		appID:     appID,
		appSecret: appSecret,
		cache:     cache,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
		now:       time.Now,
	}
}

// Token returns a tenant access token, or "" when none could be obtained.
// Failures are logged here; callers abort on "". There is no internal retry.
func (f *TokenFetcher) Token(ctx context.Context) string {
	if !f.cache {
		tok, err := f.fetch(ctx)
		if err != nil {
			f.log.Error().Err(err).Msg("token: get tenant_access_token failed")
			metrics.TokenFetches.WithLabelValues("remote", "error").Inc()
			return ""
		}
		metrics.TokenFetches.WithLabelValues("remote", "ok").Inc()
		return tok.Value
	}

	// Held across the remote call so concurrent dispatches share one refresh.
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached.usable(f.now()) {
		metrics.TokenFetches.WithLabelValues("cache", "ok").Inc()
		return f.cached.Value
	}
	f.cached = nil

	tok, err := f.fetch(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("token: get tenant_access_token failed")
		metrics.TokenFetches.WithLabelValues("remote", "error").Inc()
		return ""
	}
	metrics.TokenFetches.WithLabelValues("remote", "ok").Inc()
	if !tok.ExpiresAt.IsZero() {
		f.cached = tok
	}
	return tok.Value
}

// Invalidate drops the cached token if it is still the given value, so a
// caller that saw it rejected forces the next Token call to mint a new one.
func (f *TokenFetcher) Invalidate(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached != nil && f.cached.Value == token {
		f.cached = nil
	}
}

// tokenError carries the platform code of a failed mint for logging.
type tokenError struct {
	status int
	code   int
	msg    string
}

func (e *tokenError) Error() string {
	return fmt.Sprintf("tenant_access_token: status %d code %d: %s", e.status, e.code, e.msg)
}

func (f *TokenFetcher) fetch(ctx context.Context) (*AccessToken, error) {
	payload, err := json.Marshal(tenantTokenRequest{AppID: f.appID, AppSecret: f.appSecret})
	if err != nil {
		return nil, fmt.Errorf("marshaling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+tenantTokenPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	obtained := f.now()
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting tenant_access_token: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading tenant_access_token response: %w", err)
	}

	var result tenantTokenResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &tokenError{status: resp.StatusCode, code: -1, msg: string(respBody)}
		}
		return nil, fmt.Errorf("decoding tenant_access_token response: %w", err)
	}
	if resp.StatusCode >= 300 || result.Code != 0 {
		return nil, &tokenError{status: resp.StatusCode, code: result.Code, msg: result.Msg}
	}
	if result.TenantAccessToken == "" {
		return nil, &tokenError{status: resp.StatusCode, code: result.Code, msg: "empty tenant_access_token"}
	}

	tok := &AccessToken{Value: result.TenantAccessToken, ObtainedAt: obtained}
	if result.Expire > 0 {
		tok.ExpiresAt = obtained.Add(time.Duration(result.Expire)*time.Second - tokenExpiryMargin)
	}
	return tok, nil
}
