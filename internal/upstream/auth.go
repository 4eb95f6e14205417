package upstream

import (
	"context"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"shopping-assistant-backend/internal/config"
)

// NewHTTPClient returns the client used for upstream calls. When OAuth
// client credentials are configured, requests carry a bearer token that is
// fetched and refreshed automatically.
func NewHTTPClient(ctx context.Context, cfg config.UpstreamConfig) *http.Client {
	if cfg.OAuth.ClientID == "" || cfg.OAuth.TokenURL == "" {
		return &http.Client{Timeout: cfg.Timeout}
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
		Scopes:       cfg.OAuth.Scopes,
	}
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout
	return client
}
