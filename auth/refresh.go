package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// RefreshPath is the remote endpoint that exchanges a refresh token for
// a new pair. The gateway must never run its refresh-and-retry cycle
// against this path.
const RefreshPath = "/auth/refresh"

// RefreshCoordinator exchanges the stored refresh token for a new
// TokenPair.
//
// Concurrent Refresh calls are de-duplicated: while one exchange is in
// flight every additional caller awaits that same round-trip, so exactly
// one network call happens per wave of concurrent requests. On success
// the new pair is persisted before any waiter observes it; on failure
// nothing is persisted and every waiter gets the same error.
type RefreshCoordinator struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
	group   singleflight.Group
	log     *slog.Logger
}

// NewRefreshCoordinator creates a coordinator for the given API base
// URL. A nil client falls back to http.DefaultClient.
func NewRefreshCoordinator(baseURL string, client *http.Client, tokens *TokenStore, log *slog.Logger) *RefreshCoordinator {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &RefreshCoordinator{
		baseURL: baseURL,
		http:    client,
		tokens:  tokens,
		log:     log,
	}
}

// Refresh returns a fresh TokenPair, joining any exchange already in
// flight. A caller whose context is cancelled simply stops waiting; the
// shared exchange keeps running and settles the other waiters.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (TokenPair, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.exchange()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenPair{}, res.Err
		}
		return res.Val.(TokenPair), nil
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	}
}

// exchange performs the actual network round-trip. It runs on a
// background context: the flight is shared between callers and must not
// die with whichever caller happened to start it.
func (c *RefreshCoordinator) exchange() (any, error) {
	ctx := context.Background()

	refreshToken := c.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		return TokenPair{}, ErrNoRefreshToken
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return TokenPair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenPair{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("refresh rejected", "status", resp.StatusCode)
		return TokenPair{}, ErrRefreshRejected
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenPair{}, ErrMalformedResponse
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return TokenPair{}, ErrMalformedResponse
	}

	pair := TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	c.tokens.SetTokenPair(ctx, pair)
	c.log.Debug("token pair refreshed")
	return pair, nil
}
