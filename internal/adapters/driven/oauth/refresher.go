// Package oauth talks to provider token endpoints: refreshing access tokens
// and exchanging authorization codes.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure Refresher implements the interface.
var _ driven.TokenRefresher = (*Refresher)(nil)

// DefaultTimeout bounds a single token endpoint call.
const DefaultTimeout = 30 * time.Second

// ProviderConfig is the OAuth client registration for one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string

	// TokenURL overrides the provider's well-known token endpoint.
	TokenURL string

	// AuthURL overrides the provider's well-known authorization endpoint.
	AuthURL string

	Scopes []string
}

// KnownEndpoints are the built-in provider endpoints keyed by provider name.
var KnownEndpoints = map[string]oauth2.Endpoint{
	"google":    endpoints.Google,
	"microsoft": endpoints.AzureAD("common"),
	"dropbox":   endpoints.Dropbox,
}

// Refresher implements driven.TokenRefresher over golang.org/x/oauth2.
type Refresher struct {
	configs map[string]*oauth2.Config
	client  *http.Client
}

// NewRefresher builds a refresher for the configured providers. A provider
// without a known endpoint must set TokenURL.
func NewRefresher(providers map[string]ProviderConfig, client *http.Client) (*Refresher, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	r := &Refresher{configs: make(map[string]*oauth2.Config, len(providers)), client: client}
	for name, pc := range providers {
		endpoint := KnownEndpoints[name]
		if pc.TokenURL != "" {
			endpoint.TokenURL = pc.TokenURL
		}
		if pc.AuthURL != "" {
			endpoint.AuthURL = pc.AuthURL
		}
		if endpoint.TokenURL == "" {
			return nil, fmt.Errorf("%w: provider %s has no token url", domain.ErrValidation, name)
		}
		if pc.ClientID == "" {
			return nil, fmt.Errorf("%w: provider %s has no client id", domain.ErrValidation, name)
		}
		endpoint.AuthStyle = oauth2.AuthStyleInParams
		r.configs[name] = &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       append([]string(nil), pc.Scopes...),
		}
	}
	return r, nil
}

// Providers returns the configured provider names, sorted.
func (r *Refresher) Providers() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthCodeURL returns the provider's consent URL for an out-of-band code flow.
func (r *Refresher) AuthCodeURL(provider, state, redirectURI string) (string, error) {
	cfg, err := r.config(provider)
	if err != nil {
		return "", err
	}
	c := *cfg
	c.RedirectURL = redirectURI
	return c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Refresh exchanges refreshToken for a new credential.
func (r *Refresher) Refresh(ctx context.Context, provider, refreshToken string) (domain.Credential, error) {
	if refreshToken == "" {
		return domain.Credential{}, domain.NewError(domain.KindAuthentication, "no refresh token for provider %s", provider)
	}
	cfg, err := r.config(provider)
	if err != nil {
		return domain.Credential{}, err
	}
	// An expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := cfg.TokenSource(r.context(ctx), stale).Token()
	if err != nil {
		return domain.Credential{}, classify(provider, "refresh", err)
	}
	return credential(tok), nil
}

// Exchange trades an authorization code for a credential.
func (r *Refresher) Exchange(ctx context.Context, provider, code, redirectURI string) (domain.Credential, error) {
	cfg, err := r.config(provider)
	if err != nil {
		return domain.Credential{}, err
	}
	c := *cfg
	c.RedirectURL = redirectURI
	tok, err := c.Exchange(r.context(ctx), code)
	if err != nil {
		return domain.Credential{}, classify(provider, "exchange", err)
	}
	return credential(tok), nil
}

func (r *Refresher) config(provider string) (*oauth2.Config, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, domain.NewError(domain.KindValidation, "provider %q is not configured", provider)
	}
	return cfg, nil
}

func (r *Refresher) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.client)
}

func credential(tok *oauth2.Token) domain.Credential {
	return domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
}

// classify maps token endpoint failures onto error kinds: rejected grants
// are authentication errors, throttling and server or network failures are
// transient.
func classify(provider, op string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		status := retrieve.Response.StatusCode
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			return domain.WrapError(domain.KindTransientProvider, err,
				fmt.Sprintf("%s token %s: status %d", provider, op, status))
		case status >= 400:
			reason := retrieve.ErrorCode
			if reason == "" {
				reason = fmt.Sprintf("status %d", status)
			}
			return domain.WrapError(domain.KindAuthentication, err,
				fmt.Sprintf("%s token %s rejected: %s", provider, op, reason))
		}
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.KindTransientProvider, err, fmt.Sprintf("%s token %s", provider, op))
	}
	return domain.WrapError(domain.KindAuthentication, err, fmt.Sprintf("%s token %s", provider, op))
}
