package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	defaultScope    = "https://www.googleapis.com/auth/cloud-platform"

	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Tokens are refreshed this long before they actually expire.
	expiryMargin = time.Minute
)

// TokenSource exchanges a service account key for OAuth2 access tokens using
// the JWT bearer grant, caching the token until shortly before expiry.
// Safe for concurrent use.
type TokenSource struct {
	key    *ServiceAccountKey
	client *http.Client
	scopes []string
	now    func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*TokenSource)

// WithHTTPClient overrides the HTTP client used for the token exchange.
func WithHTTPClient(client *http.Client) TokenSourceOption {
	return func(ts *TokenSource) { ts.client = client }
}

// WithScopes overrides the requested OAuth2 scopes.
func WithScopes(scopes ...string) TokenSourceOption {
	return func(ts *TokenSource) { ts.scopes = scopes }
}

// NewTokenSource creates a TokenSource for the given service account key.
func NewTokenSource(key *ServiceAccountKey, opts ...TokenSourceOption) *TokenSource {
	ts := &TokenSource{
		key:    key,
		client: &http.Client{Timeout: 30 * time.Second},
		scopes: []string{defaultScope},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// Token returns a valid access token, performing the exchange when the cached
// token is missing or about to expire.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiry.Add(-expiryMargin)) {
		return ts.token, nil
	}

	assertion, err := ts.signAssertion()
	if err != nil {
		return "", fmt.Errorf("sign token assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.key.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned an empty access token")
	}

	ts.token = tokenResp.AccessToken
	ts.expiry = ts.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return ts.token, nil
}

func (ts *TokenSource) signAssertion() (string, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(ts.key.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	now := ts.now()
	claims := jwt.MapClaims{
		"iss":   ts.key.ClientEmail,
		"scope": strings.Join(ts.scopes, " "),
		"aud":   ts.key.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ts.key.PrivateKeyID != "" {
		token.Header["kid"] = ts.key.PrivateKeyID
	}
	return token.SignedString(privateKey)
}
