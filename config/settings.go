package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the SDK's validated configuration.
type Settings struct {
	// APIBaseURL is the root of the remote dashboard API.
	APIBaseURL string `validate:"required,url"`

	// EntryRoute is the unauthenticated entry route the host redirects
	// to on session expiry.
	EntryRoute string `validate:"required,startswith=/"`

	// RequestTimeout bounds each HTTP round-trip.
	RequestTimeout time.Duration `validate:"min=0"`

	// RefreshLead is how far ahead of access-token expiry the proactive
	// refresh fires; MinRefreshDelay floors the timer.
	RefreshLead     time.Duration `validate:"min=0"`
	MinRefreshDelay time.Duration `validate:"min=0"`

	// StorageBackend selects the client-state store.
	StorageBackend   string `validate:"oneof=memory redis postgres"`
	StorageNamespace string

	RedisAddr     string `validate:"required_if=StorageBackend redis"`
	RedisPassword string
	RedisDB       int

	PostgresURL string `validate:"required_if=StorageBackend postgres"`
}

// Defaults returns the settings used when a key is not configured.
func Defaults() Settings {
	return Settings{
		EntryRoute:      "/login",
		RequestTimeout:  8 * time.Second,
		RefreshLead:     60 * time.Second,
		MinRefreshDelay: time.Second,
		StorageBackend:  "memory",
	}
}

// Load resolves Settings through the manager's provider chain and
// validates the result.
func Load(m *Manager) (Settings, error) {
	s := Defaults()

	s.APIBaseURL = m.Get("API_BASE_URL")
	s.EntryRoute = m.GetWithDefault("ENTRY_ROUTE", s.EntryRoute)
	s.StorageBackend = m.GetWithDefault("STORAGE_BACKEND", s.StorageBackend)
	s.StorageNamespace = m.Get("STORAGE_NAMESPACE")
	s.RedisAddr = m.Get("REDIS_ADDR")
	s.RedisPassword = m.Get("REDIS_PASSWORD")
	s.PostgresURL = m.Get("POSTGRES_URL")

	var err error
	if s.RequestTimeout, err = durationOf(m, "REQUEST_TIMEOUT", s.RequestTimeout); err != nil {
		return Settings{}, err
	}
	if s.RefreshLead, err = durationOf(m, "REFRESH_LEAD", s.RefreshLead); err != nil {
		return Settings{}, err
	}
	if s.MinRefreshDelay, err = durationOf(m, "MIN_REFRESH_DELAY", s.MinRefreshDelay); err != nil {
		return Settings{}, err
	}
	if raw := m.Get("REDIS_DB"); raw != "" {
		if s.RedisDB, err = strconv.Atoi(raw); err != nil {
			return Settings{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings against their constraints.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// durationOf reads a duration key, keeping the fallback when unset.
func durationOf(m *Manager, key string, fallback time.Duration) (time.Duration, error) {
	raw := m.Get(key)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
