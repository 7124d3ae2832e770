package google

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ServiceConfig points API clients at an endpoint. Zero values use Google's.
type ServiceConfig struct {
	// Endpoint overrides the API base URL.
	Endpoint string

	// HTTPClient is the base client wrapped with the bearer token.
	HTTPClient *http.Client
}

// NewDriveService creates a Google Drive API service that authenticates
// every request with accessToken.
func NewDriveService(ctx context.Context, accessToken string, cfg ServiceConfig) (*drive.Service, error) {
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return drive.NewService(ctx, opts...)
}
