// Package config resolves the SDK's settings through a provider chain:
// an optional secret store (Azure Key Vault) as the primary source with
// environment variables as the always-available fallback.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"taleemtrack.com/client/config/providers"
)

// Manager resolves configuration keys from a primary provider with an
// env-file fallback.
type Manager struct {
	configSource     string
	provider         providers.ConfigProvider
	fallbackProvider providers.ConfigProvider
}

// NewManager creates a manager. The source is selected by the
// CONFIG_SOURCE environment variable ("env-file" default,
// "azure-keyvault" with CONFIG_SOURCE_CONFIG carrying provider JSON);
// these two variables bootstrap the chain and are always read from the
// environment directly.
func NewManager() (*Manager, error) {
	configSource := os.Getenv("CONFIG_SOURCE")
	if configSource == "" {
		configSource = string(providers.ProviderTypeEnvFile)
	}

	var sourceConfig map[string]any
	if configSource != string(providers.ProviderTypeEnvFile) {
		if raw := os.Getenv("CONFIG_SOURCE_CONFIG"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &sourceConfig); err != nil {
				return nil, fmt.Errorf("failed to parse CONFIG_SOURCE_CONFIG: %w", err)
			}
		}
	}

	factory := &providers.ProviderFactory{}

	primaryConfig := providers.ProviderConfig{
		ProviderType: providers.ProviderType(configSource),
		Config:       sourceConfig,
	}
	if err := factory.ValidateProviderConfig(primaryConfig); err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}

	primary, err := factory.NewProvider(primaryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary provider: %w", err)
	}

	fallback, err := factory.NewProvider(providers.ProviderConfig{
		ProviderType: providers.ProviderTypeEnvFile,
		Config:       map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback provider: %w", err)
	}

	slog.Info("configuration manager initialized", "source", configSource)

	return &Manager{
		configSource:     configSource,
		provider:         primary,
		fallbackProvider: fallback,
	}, nil
}

// Get retrieves a configuration value, falling back to the environment
// when the primary source misses. Returns "" when neither has it.
func (m *Manager) Get(key string) string {
	return m.GetWithDefault(key, "")
}

// GetWithDefault retrieves a configuration value with a fallback value.
func (m *Manager) GetWithDefault(key, defaultValue string) string {
	ctx := context.Background()

	value, err := m.provider.Get(ctx, m.normalizeKey(key))
	if err == nil && value != "" {
		return value
	}

	if m.configSource != string(providers.ProviderTypeEnvFile) {
		// Fallback uses the original key: env vars keep underscores.
		value, err = m.fallbackProvider.Get(ctx, key)
		if err == nil && value != "" {
			return value
		}
	}

	return defaultValue
}

// Source returns the active primary configuration source.
func (m *Manager) Source() string {
	return m.configSource
}

// normalizeKey adapts key names to the primary source's constraints.
// Azure Key Vault rejects underscores, so they become hyphens there.
func (m *Manager) normalizeKey(key string) string {
	if m.configSource == string(providers.ProviderTypeAzureKeyVault) {
		return strings.ReplaceAll(key, "_", "-")
	}
	return key
}
