package auth

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"
)

// unsignedToken builds a structurally valid JWT whose signature is
// garbage. Expiry scheduling reads exp without verification, so these
// are enough.
func unsignedToken(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"u1","exp":%d}`, exp.Unix())))
	return header + "." + claims + ".invalid-signature"
}

func TestTokenExpiry(t *testing.T) {
	want := time.Now().Add(90 * time.Minute).Truncate(time.Second)

	got, err := TokenExpiry(unsignedToken(want))
	if err != nil {
		t.Fatalf("TokenExpiry failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("exp = %v, want %v", got, want)
	}
}

func TestTokenExpiryMalformed(t *testing.T) {
	for _, token := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
		if _, err := TokenExpiry(token); err == nil {
			t.Errorf("TokenExpiry(%q) should fail", token)
		}
	}
}

func TestTokenExpiryMissingClaim(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1"}`))
	token := header + "." + claims + ".sig"

	if _, err := TokenExpiry(token); err == nil {
		t.Error("a token without exp should fail")
	}
}
