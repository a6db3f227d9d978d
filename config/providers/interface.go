package providers

import (
	"context"
	"fmt"
)

// ProviderType represents the type of configuration source.
type ProviderType string

const (
	ProviderTypeEnvFile       ProviderType = "env-file"
	ProviderTypeAzureKeyVault ProviderType = "azure-keyvault"
)

// ConfigProvider defines the interface for any configuration source.
type ConfigProvider interface {
	// Get retrieves a configuration value by key.
	Get(ctx context.Context, key string) (string, error)

	// GetWithDefault retrieves a configuration value with fallback to default.
	GetWithDefault(ctx context.Context, key, defaultValue string) (string, error)
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	ProviderType ProviderType   `json:"provider_type"`
	Config       map[string]any `json:"config"`
}

// ProviderFactory creates configuration providers.
type ProviderFactory struct{}

// NewProvider creates a configuration provider for the given type.
func (pf *ProviderFactory) NewProvider(config ProviderConfig) (ConfigProvider, error) {
	switch config.ProviderType {
	case ProviderTypeEnvFile:
		return NewEnvFileProvider(config)
	case ProviderTypeAzureKeyVault:
		return NewAzureKeyVaultProvider(config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.ProviderType)
	}
}

// ValidateProviderConfig validates the configuration for a provider type
// before constructing it.
func (pf *ProviderFactory) ValidateProviderConfig(config ProviderConfig) error {
	switch config.ProviderType {
	case ProviderTypeEnvFile:
		return nil
	case ProviderTypeAzureKeyVault:
		vaultURL, ok := config.Config["vault_url"].(string)
		if !ok || vaultURL == "" {
			return fmt.Errorf("vault_url is required for the Azure Key Vault provider")
		}
		return nil
	default:
		return fmt.Errorf("unsupported provider type: %s", config.ProviderType)
	}
}
