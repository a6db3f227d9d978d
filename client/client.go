// Package client wires the session and filter subsystems together from
// validated settings. Hosts construct one Client at process start and
// hand its parts to their UI layer.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"taleemtrack.com/client/auth"
	"taleemtrack.com/client/config"
	"taleemtrack.com/client/filters"
	"taleemtrack.com/client/storage"
)

// Options tune a Client beyond its settings.
type Options struct {
	// Navigator receives route records and redirects; NopNavigator when
	// unset (headless hosts).
	Navigator auth.Navigator

	// HTTPClient overrides the default retrying transport.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is the assembled SDK.
type Client struct {
	Settings config.Settings
	Provider storage.Provider
	Tokens   *auth.TokenStore
	Refresh  *auth.RefreshCoordinator
	Gateway  *auth.Gateway
	Session  *auth.Controller
	Filters  *filters.Store
}

// New builds a Client. The filter store is hydrated from any stored
// role/division pair before the first CheckAuth resolves, so a
// division-locked role never briefly shows unfiltered state.
func New(ctx context.Context, settings config.Settings, opts Options) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	provider, err := storage.New(ctx, storage.Config{
		Backend:       storage.BackendType(settings.StorageBackend),
		RedisAddr:     settings.RedisAddr,
		RedisPassword: settings.RedisPassword,
		RedisDB:       settings.RedisDB,
		PostgresURL:   settings.PostgresURL,
		Namespace:     settings.StorageNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("client: storage: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = auth.DefaultHTTPClient()
		httpClient.Timeout = settings.RequestTimeout
	}

	tokens := auth.NewTokenStore(provider, log)
	refresher := auth.NewRefreshCoordinator(settings.APIBaseURL, httpClient, tokens, log)
	gateway := auth.NewGateway(settings.APIBaseURL, httpClient, tokens, refresher, log)

	filterStore := filters.New(filters.NewKVBucketStore(provider), log)
	filterStore.BindRole(tokens.Role(ctx), tokens.DivisionID(ctx))

	session := auth.NewController(tokens, gateway, refresher, auth.ControllerOptions{
		Navigator:       opts.Navigator,
		Filters:         filterStore,
		EntryRoute:      settings.EntryRoute,
		RefreshLead:     settings.RefreshLead,
		MinRefreshDelay: settings.MinRefreshDelay,
		Logger:          log,
	})

	return &Client{
		Settings: settings,
		Provider: provider,
		Tokens:   tokens,
		Refresh:  refresher,
		Gateway:  gateway,
		Session:  session,
		Filters:  filterStore,
	}, nil
}

// Close disposes the session controller and releases the storage
// backend when it holds connections.
func (c *Client) Close() error {
	c.Session.Dispose()
	if closer, ok := c.Provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
