package oauth

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

	shared "github.com/dogpatrol/server/pkg"
	httputil "github.com/dogpatrol/server/pkg/infrastructure/http"
)

// AuthError means Strava rejected the refresh token (expired or
// revoked). It is fatal for the current request or run: retrying
// cannot help, the operator has to re-run the authorize flow.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("refresh token rejected (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("refresh token rejected (status %d)", e.StatusCode)
}

// Token represents the OAuth token structure we care about
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenSource returns a valid token.
// It is safe for concurrent use by multiple goroutines.
type TokenSource interface {
	Token(context.Context) (*Token, error)
	ForceRefresh(context.Context) (*Token, error)
}

// ConfigTokenSource reads the stored refresh token from the auth
// document and exchanges it at the Strava token endpoint, persisting
// a rotated refresh token back. The access token lives only in
// memory; it is never written to the store.
type ConfigTokenSource struct {
	db            shared.Database // nil in standalone mode
	staticRefresh string          // standalone mode: rotation tracked in memory only
	clientID      string
	clientSecret  string
	client        *http.Client

	mu     sync.Mutex
	cached *Token
}

// NewConfigTokenSource builds a token source backed by the Firestore
// auth document. httpClient may be nil; pass one wrapping a
// strava.Gate when token calls should count against the rate window.
func NewConfigTokenSource(db shared.Database, clientID, clientSecret string, httpClient *http.Client) *ConfigTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ConfigTokenSource{
		db:           db,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       httpClient,
	}
}

// NewStaticTokenSource builds a token source seeded with an explicit
// refresh token instead of the store (backfill standalone mode). A
// rotated token replaces the seed in memory for the rest of the run.
func NewStaticTokenSource(refreshToken, clientID, clientSecret string, httpClient *http.Client) *ConfigTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ConfigTokenSource{
		staticRefresh: refreshToken,
		clientID:      clientID,
		clientSecret:  clientSecret,
		client:        httpClient,
	}
}

// Token returns a token, refreshing it if necessary.
func (s *ConfigTokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Proactive check: reuse until a minute before expiry
	if s.cached != nil && (s.cached.Expiry.IsZero() || time.Now().Add(1*time.Minute).Before(s.cached.Expiry)) {
		return s.cached, nil
	}

	refreshToken, err := s.storedRefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	return s.refresh(ctx, refreshToken)
}

// ForceRefresh forcibly refreshes the token regardless of expiry.
func (s *ConfigTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshToken, err := s.storedRefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	return s.refresh(ctx, refreshToken)
}

// storedRefreshToken must be called with the mutex held.
func (s *ConfigTokenSource) storedRefreshToken(ctx context.Context) (string, error) {
	if s.db == nil {
		if s.staticRefresh == "" {
			return "", fmt.Errorf("missing refresh token")
		}
		return s.staticRefresh, nil
	}

	cfg, err := s.db.GetStravaConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get strava config: %w", err)
	}
	if cfg.RefreshToken == "" {
		return "", fmt.Errorf("refresh_token not found in strava config")
	}
	return cfg.RefreshToken, nil
}

// refresh performs the HTTP exchange and persists rotation. Must be
// called with the mutex held.
func (s *ConfigTokenSource) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET must be set")
	}

	data := url.Values{}
	// Strava requires client_id/secret in the form body.
	data.Set("client_id", s.clientID)
	data.Set("client_secret", s.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", shared.StravaTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxErrorBodySize))
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode != http.StatusOK:
		return nil, httputil.ParseErrorResponse(resp)
	}

	// Parse Response
	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	newExpiry := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresAt != 0 {
		newExpiry = time.Unix(result.ExpiresAt, 0)
	}

	// Persist rotation only when the vendor returned a different
	// token; the old one is invalid from here on.
	if result.RefreshToken != "" && result.RefreshToken != refreshToken {
		if s.db != nil {
			if err := s.db.UpdateStravaConfig(ctx, map[string]interface{}{
				"refresh_token": result.RefreshToken,
			}); err != nil {
				return nil, fmt.Errorf("failed to persist rotated refresh token: %w", err)
			}
		} else {
			s.staticRefresh = result.RefreshToken
		}
	}

	newRefreshToken := result.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	s.cached = &Token{
		AccessToken:  result.AccessToken,
		RefreshToken: newRefreshToken,
		Expiry:       newExpiry,
	}
	return s.cached, nil
}
