package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Refresher lets the gateway trigger a token refresh on 401. Satisfied
// by *RefreshCoordinator.
type Refresher interface {
	Refresh(ctx context.Context) (TokenPair, error)
}

// Response is the success outcome of a gateway request. NoContent marks
// a 204 response, which is a defined success with an empty body.
type Response struct {
	StatusCode int
	NoContent  bool
}

// Gateway performs authenticated JSON requests against the remote API.
//
// Per request it runs at most one refresh-and-retry cycle:
//
//	attempt -> [401, not the refresh endpoint] -> refresh -> retry once -> result
//
// The retry's outcome is final even if it is another 401. A 401 from the
// refresh endpoint itself is propagated without refreshing, which is
// what stops the cycle from recursing. When the refresh fails the
// gateway emits a session-expired broadcast and fails the original
// request with ErrUnauthorized.
type Gateway struct {
	baseURL   string
	http      *http.Client
	tokens    *TokenStore
	refresher Refresher
	expired   *Broadcast
	log       *slog.Logger
}

// NewGateway creates a gateway for the given API base URL. A nil client
// falls back to DefaultHTTPClient().
func NewGateway(baseURL string, client *http.Client, tokens *TokenStore, refresher Refresher, log *slog.Logger) *Gateway {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		baseURL:   baseURL,
		http:      client,
		tokens:    tokens,
		refresher: refresher,
		expired:   NewBroadcast(),
		log:       log,
	}
}

// SessionExpired is the broadcast fired when a 401 proves irrecoverable.
// The session controller subscribes to it; hosts may too.
func (g *Gateway) SessionExpired() *Broadcast {
	return g.expired
}

// DefaultHTTPClient returns an HTTP client that retries transport-level
// failures a couple of times and never retries on any HTTP response.
// Status-code handling, including the 401 cycle, stays with the gateway.
func DefaultHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	return rc.StandardClient()
}

// Do performs one authenticated request. payload, when non-nil, is
// marshalled as the JSON body; out, when non-nil, receives the decoded
// JSON response on success.
func (g *Gateway) Do(ctx context.Context, method, path string, payload, out any) (*Response, error) {
	status, body, err := g.attempt(ctx, method, path, payload, g.tokens.AccessToken(ctx))
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && path != RefreshPath {
		pair, refreshErr := g.refresher.Refresh(ctx)
		if refreshErr != nil {
			g.log.Debug("refresh after 401 failed", "path", path, "error", refreshErr)
			g.expired.Emit()
			return nil, ErrUnauthorized
		}

		// One retry with the fresh token; its outcome is final.
		status, body, err = g.attempt(ctx, method, path, payload, pair.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	return finalize(status, body, out)
}

// DoPublic performs one unauthenticated request with no refresh cycle.
// Used for the login endpoint, where a 401 is an answer, not a trigger.
func (g *Gateway) DoPublic(ctx context.Context, method, path string, payload, out any) (*Response, error) {
	status, body, err := g.attempt(ctx, method, path, payload, "")
	if err != nil {
		return nil, err
	}
	return finalize(status, body, out)
}

// attempt performs a single HTTP round-trip and reads the whole body.
func (g *Gateway) attempt(ctx context.Context, method, path string, payload any, accessToken string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}
	return resp.StatusCode, body, nil
}

// finalize turns a status and body into the caller-facing outcome.
func finalize(status int, body []byte, out any) (*Response, error) {
	if status == http.StatusNoContent {
		return &Response{StatusCode: status, NoContent: true}, nil
	}

	if status < 200 || status > 299 {
		return nil, &APIError{StatusCode: status, Message: serverMessage(body)}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &APIError{StatusCode: status, Message: "invalid JSON in response body"}
		}
	}
	return &Response{StatusCode: status}, nil
}

// serverMessage extracts the server-supplied error message when the
// body carries one in either conventional field.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
