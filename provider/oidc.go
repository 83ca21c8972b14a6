package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig holds the config_provider.oidc section, the generalization of
// dex's connector/oidc Config trimmed to the fields gafaelfawr needs (no
// hosted-domain allowlist, no broken-auth-header workaround table — this
// deployment targets one known issuer, not an arbitrary federation of
// third-party IdPs the way dex's connector does).
type OIDCConfig struct {
	Issuer       string   `json:"issuer" yaml:"issuer"`
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

type oidcProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewOIDC discovers the issuer's provider metadata and builds a Provider
// against it, mirroring dex's connector/oidc Config.Open.
func NewOIDC(ctx context.Context, cfg OIDCConfig) (Provider, error) {
	upstream, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("provider: discover oidc issuer %q: %w", cfg.Issuer, err)
	}

	scopes := []string{oidc.ScopeOpenID}
	if len(cfg.Scopes) > 0 {
		scopes = append(scopes, cfg.Scopes...)
	} else {
		scopes = append(scopes, "profile", "email")
	}

	return &oidcProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     upstream.Endpoint(),
			Scopes:       scopes,
			RedirectURL:  cfg.RedirectURL,
		},
		verifier: upstream.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *oidcProvider) LoginURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

func (p *oidcProvider) Exchange(ctx context.Context, r *http.Request) (Identity, error) {
	q := r.URL.Query()
	if errType := q.Get("error"); errType != "" {
		return Identity{}, fmt.Errorf("provider: oidc returned error %q: %s", errType, q.Get("error_description"))
	}

	tok, err := p.oauth2Config.Exchange(ctx, q.Get("code"))
	if err != nil {
		return Identity{}, fmt.Errorf("provider: oidc code exchange: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return Identity{}, fmt.Errorf("provider: oidc token response missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("provider: oidc verify id_token: %w", err)
	}

	var claims struct {
		Subject       string   `json:"sub"`
		Email         string   `json:"email"`
		EmailVerified bool     `json:"email_verified"`
		Name          string   `json:"name"`
		Groups        []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("provider: oidc decode claims: %w", err)
	}

	return Identity{
		Username: claims.Subject,
		UID:      claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		Groups:   claims.Groups,
	}, nil
}
