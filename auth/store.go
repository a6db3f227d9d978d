package auth

import (
	"context"
	"errors"
	"log/slog"

	"taleemtrack.com/client/storage"
)

// Logical key names for persisted session state. The underlying storage
// is an opaque key-value store; these names are the fixed contract
// between tabs/processes sharing that store.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyRole         = "role"
	KeyDivisionID   = "division_id"
	KeyDivisionName = "division_name"
	KeyLastPath     = "last_path"
)

// TokenStore wraps the persistent store for the session credential pair,
// the active role and the division fields.
//
// Storage failures never crash identity logic: a failing backend makes
// getters return empty strings and setters no-ops, logged at debug
// level. Login, refresh and logout keep working against in-memory state.
type TokenStore struct {
	provider storage.Provider
	log      *slog.Logger
}

// NewTokenStore creates a token store over the given provider. A nil
// logger falls back to slog.Default().
func NewTokenStore(provider storage.Provider, log *slog.Logger) *TokenStore {
	if log == nil {
		log = slog.Default()
	}
	return &TokenStore{provider: provider, log: log}
}

// Get returns the value for a logical key, or "" when absent or when
// the backend fails.
func (s *TokenStore) Get(ctx context.Context, key string) string {
	value, err := s.provider.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("token store read failed", "key", key, "error", err)
		}
		return ""
	}
	return value
}

// Set stores a value for a logical key, ignoring backend failures.
func (s *TokenStore) Set(ctx context.Context, key, value string) {
	if err := s.provider.Set(ctx, key, value); err != nil {
		s.log.Debug("token store write failed", "key", key, "error", err)
	}
}

// Remove deletes a logical key, ignoring backend failures.
func (s *TokenStore) Remove(ctx context.Context, key string) {
	if err := s.provider.Delete(ctx, key); err != nil {
		s.log.Debug("token store delete failed", "key", key, "error", err)
	}
}

// AccessToken returns the stored access token, if any.
func (s *TokenStore) AccessToken(ctx context.Context) string {
	return s.Get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, if any.
func (s *TokenStore) RefreshToken(ctx context.Context) string {
	return s.Get(ctx, KeyRefreshToken)
}

// Role returns the stored role, if any.
func (s *TokenStore) Role(ctx context.Context) Role {
	return Role(s.Get(ctx, KeyRole))
}

// DivisionID returns the stored division id, if any.
func (s *TokenStore) DivisionID(ctx context.Context) string {
	return s.Get(ctx, KeyDivisionID)
}

// SetTokenPair persists both tokens. Callers rely on this being the
// single write path for the pair so it is never half-replaced.
func (s *TokenStore) SetTokenPair(ctx context.Context, pair TokenPair) {
	s.Set(ctx, KeyAccessToken, pair.AccessToken)
	s.Set(ctx, KeyRefreshToken, pair.RefreshToken)
}

// SetRole persists the active role.
func (s *TokenStore) SetRole(ctx context.Context, role Role) {
	s.Set(ctx, KeyRole, string(role))
}

// SetDivision persists the division fields for a division-scoped role.
func (s *TokenStore) SetDivision(ctx context.Context, id, name string) {
	s.Set(ctx, KeyDivisionID, id)
	s.Set(ctx, KeyDivisionName, name)
}

// SetLastPath records the route to return to after the next login.
func (s *TokenStore) SetLastPath(ctx context.Context, path string) {
	s.Set(ctx, KeyLastPath, path)
}

// LastPath returns the recorded return route, if any.
func (s *TokenStore) LastPath(ctx context.Context) string {
	return s.Get(ctx, KeyLastPath)
}

// ClearSession removes every credential and identity key. The last-path
// key survives so the next login can restore the route.
func (s *TokenStore) ClearSession(ctx context.Context) {
	s.Remove(ctx, KeyAccessToken)
	s.Remove(ctx, KeyRefreshToken)
	s.Remove(ctx, KeyRole)
	s.Remove(ctx, KeyDivisionID)
	s.Remove(ctx, KeyDivisionName)
}
