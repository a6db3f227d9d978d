package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

const (
	secretCacheTTL    = 5 * time.Minute
	secretFetchLimit  = 10 * time.Second
	vaultURLConfigKey = "vault_url"
)

// AzureKeyVaultProvider resolves configuration from Azure Key Vault.
// Deployments that keep the dashboard's API endpoints and storage DSNs
// in a vault use this as the primary source, with env vars as fallback.
//
// Secrets are cached per key for a few minutes so settings reads do not
// hammer the vault.
type AzureKeyVaultProvider struct {
	client *azsecrets.Client

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value   string
	expires time.Time
}

// vaultSecretName maps an env-style key onto a Key Vault secret name.
// Key Vault rejects underscores: API_BASE_URL becomes API-BASE-URL.
func vaultSecretName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// NewAzureKeyVaultProvider creates a Key Vault provider using the
// default credential chain (managed identity in deployment).
func NewAzureKeyVaultProvider(config ProviderConfig) (ConfigProvider, error) {
	vaultURL, ok := config.Config[vaultURLConfigKey].(string)
	if !ok || vaultURL == "" {
		return nil, fmt.Errorf("vault_url is required for the Azure Key Vault provider")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("key vault client: %w", err)
	}

	slog.Info("Azure Key Vault provider initialized", "vault_url", vaultURL)

	return &AzureKeyVaultProvider{
		client: client,
		cache:  make(map[string]cachedSecret),
	}, nil
}

// Get retrieves a configuration value from the vault, serving cached
// values while they are fresh.
func (p *AzureKeyVaultProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	entry, ok := p.cache[key]
	p.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.value, nil
	}

	value, err := p.fetchSecret(ctx, vaultSecretName(key))
	if err != nil {
		slog.Debug("key vault secret fetch failed", "key", key, "error", err)
		return "", err
	}

	p.mu.Lock()
	p.cache[key] = cachedSecret{value: value, expires: time.Now().Add(secretCacheTTL)}
	p.mu.Unlock()
	return value, nil
}

// GetWithDefault retrieves a configuration value with a fallback value.
func (p *AzureKeyVaultProvider) GetWithDefault(ctx context.Context, key, defaultValue string) (string, error) {
	value, err := p.Get(ctx, key)
	if err != nil {
		return defaultValue, nil
	}
	return value, nil
}

func (p *AzureKeyVaultProvider) fetchSecret(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, secretFetchLimit)
	defer cancel()

	resp, err := p.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %q has no value", name)
	}
	return *resp.Value, nil
}
