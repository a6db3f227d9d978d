package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"api 401", &APIError{StatusCode: 401}, true},
		{"api 403", &APIError{StatusCode: 403}, true},
		{"api 500", &APIError{StatusCode: 500}, false},
		{"api 404", &APIError{StatusCode: 404}, false},
		{"auth error 401", ErrRefreshRejected, true},
		{"auth error other code", NewAuthError("RATE_LIMITED", "slow down", 429), false},
		{"wrapped api 401", fmt.Errorf("me: %w", &APIError{StatusCode: 401}), true},
		{"network", &NetworkError{Err: errors.New("dial tcp: refused")}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthFailure(tt.err); got != tt.want {
				t.Errorf("IsAuthFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsNetworkFailure(t *testing.T) {
	wrapped := fmt.Errorf("check: %w", &NetworkError{Err: errors.New("timeout")})
	if !IsNetworkFailure(wrapped) {
		t.Error("wrapped network error not classified")
	}
	if IsNetworkFailure(&APIError{StatusCode: 502}) {
		t.Error("a 502 response is not a transport failure")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (&APIError{StatusCode: 500}).Error(); got != "HTTP 500" {
		t.Errorf("bare APIError = %q", got)
	}
	if got := (&APIError{StatusCode: 401, Message: "expired"}).Error(); got != "expired" {
		t.Errorf("APIError with message = %q", got)
	}
	if got := ErrNoRefreshToken.Error(); got != "[NO_REFRESH_TOKEN] No refresh token stored" {
		t.Errorf("AuthError = %q", got)
	}
}
