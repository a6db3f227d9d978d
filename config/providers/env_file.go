package providers

import (
	"context"
	"fmt"
	"os"
)

// EnvFileProvider resolves configuration from environment variables. It
// is the default source and the permanent fallback behind any other.
type EnvFileProvider struct{}

// NewEnvFileProvider creates an environment variable provider.
func NewEnvFileProvider(ProviderConfig) (ConfigProvider, error) {
	return &EnvFileProvider{}, nil
}

// Get retrieves a configuration value. Unset and empty are both misses.
func (p *EnvFileProvider) Get(_ context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %q not set", key)
	}
	return value, nil
}

// GetWithDefault retrieves a configuration value with a fallback value.
func (p *EnvFileProvider) GetWithDefault(_ context.Context, key, defaultValue string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return value, nil
}
