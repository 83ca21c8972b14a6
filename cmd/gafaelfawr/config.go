package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lsst-sqre/gafaelfawr/keyset"
	"github.com/lsst-sqre/gafaelfawr/provider"
	"github.com/lsst-sqre/gafaelfawr/server"
	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/storage/memory"
	"github.com/lsst-sqre/gafaelfawr/storage/redis"
	"github.com/lsst-sqre/gafaelfawr/token"
)

// Config is the config format for the main application, the gafaelfawr
// analogue of dex's own cmd/dex Config: a YAML-facing shape that Server
// turns into the plain Go values the rest of the program consumes.
type Config struct {
	Addr   string `json:"addr"`
	Issuer string `json:"issuer"`

	DefaultAudience  string   `json:"default_audience"`
	InternalAudience string   `json:"internal_audience"`
	TrustedIssuers   []string `json:"trusted_issuers,omitempty"`
	TokenLifetime    string   `json:"token_lifetime"`

	KeyPath       string `json:"key_path"`
	SessionSecret string `json:"session_secret"`

	KnownScopes    []string            `json:"known_scopes"`
	NotebookScopes []string            `json:"notebook_scopes,omitempty"`
	GroupMapping   map[string][]string `json:"group_mapping"`

	Realm                 string   `json:"realm"`
	WWWAuthenticateScheme string   `json:"www_authenticate_scheme,omitempty"`
	AfterLogoutURL        string   `json:"after_logout_url,omitempty"`
	AllowedHosts          []string `json:"allowed_hosts,omitempty"`

	SessionCookieName string `json:"session_cookie_name,omitempty"`
	TicketCookieName  string `json:"ticket_cookie_name,omitempty"`
	TicketPrefix      string `json:"ticket_prefix,omitempty"`
	SetUserHeaders    bool   `json:"set_user_headers"`

	Storage  StorageConfig  `json:"storage"`
	Provider ProviderConfig `json:"provider"`
	Logger   Logger         `json:"logger"`
}

// StorageConfig selects the session-storage backend (C3's Backend
// collaborator): "memory" for a single-process deployment or tests,
// "redis" for anything run with more than one replica.
type StorageConfig struct {
	Type  string       `json:"type"`
	Redis redis.Config `json:"redis,omitempty"`
}

func (c StorageConfig) Open() (storage.Backend, error) {
	switch c.Type {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		return c.Redis.Open()
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.Type)
	}
}

// ProviderConfig selects and configures the single upstream identity
// provider this deployment logs users in through (§4.8); exactly one of
// GitHub/OIDC must be set.
type ProviderConfig struct {
	GitHub *provider.GitHubConfig `json:"github,omitempty"`
	OIDC   *provider.OIDCConfig   `json:"oidc,omitempty"`
}

// Logger holds configuration for the application's structured logging.
type Logger struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Validate performs the fast, file-local checks that catch a malformed
// config before anything tries to dial a backend or parse a key.
func (c Config) Validate() error {
	checks := []struct {
		bad    bool
		errMsg string
	}{
		{c.Issuer == "", "no issuer specified in config file"},
		{c.DefaultAudience == "", "no default_audience specified in config file"},
		{c.KeyPath == "", "no key_path specified in config file"},
		{c.SessionSecret == "", "no session_secret specified in config file"},
		{c.Addr == "", "no addr specified in config file"},
		{c.Provider.GitHub == nil && c.Provider.OIDC == nil, "no provider.github or provider.oidc specified in config file"},
		{c.Provider.GitHub != nil && c.Provider.OIDC != nil, "only one of provider.github or provider.oidc may be specified"},
	}

	var checkErrors []string
	for _, check := range checks {
		if check.bad {
			checkErrors = append(checkErrors, check.errMsg)
		}
	}
	if len(checkErrors) != 0 {
		return fmt.Errorf("invalid config:\n\t-\t%s", strings.Join(checkErrors, "\n\t-\t"))
	}
	return nil
}

func (c Config) tokenLifetime() (time.Duration, error) {
	if c.TokenLifetime == "" {
		return 28 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.TokenLifetime)
	if err != nil {
		return 0, fmt.Errorf("parse token_lifetime: %w", err)
	}
	return d, nil
}

func (c Config) sessionSecret() ([32]byte, error) {
	var out [32]byte
	raw, err := base64.StdEncoding.DecodeString(c.SessionSecret)
	if err != nil {
		return out, fmt.Errorf("parse session_secret: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("session_secret must decode to 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Server builds the fully-wired HTTP server: loads the signing keypair,
// opens the storage backend, constructs the issuer/verifier/provider
// collaborators, and hands them to server.New -- the gafaelfawr analogue
// of dex's Config.openStorage/toServerConfig pair in serve.go, collapsed
// into one method since this deployment has only one server, not a
// server-plus-gRPC-API pair.
func (c Config) Server(ctx context.Context, logger *slog.Logger) (*server.Server, error) {
	keyPEM, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read key_path: %w", err)
	}
	keys, err := keyset.FromPEM(c.Issuer, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	backend, err := c.Storage.Open()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store := storage.NewStore(backend)

	lifetime, err := c.tokenLifetime()
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewIssuer(keys, c.Issuer, c.DefaultAudience, lifetime)
	if err != nil {
		return nil, fmt.Errorf("build issuer: %w", err)
	}
	var acceptedAudiences []string
	if c.DefaultAudience != "" {
		acceptedAudiences = append(acceptedAudiences, c.DefaultAudience)
	}
	if c.InternalAudience != "" {
		acceptedAudiences = append(acceptedAudiences, c.InternalAudience)
	}
	verifier := token.NewVerifier(c.Issuer, keys.PublicJWKS(), c.TrustedIssuers, acceptedAudiences, http.DefaultClient)

	providers := make(map[string]provider.Provider, 1)
	switch {
	case c.Provider.GitHub != nil:
		providers["github"] = provider.NewGitHub(*c.Provider.GitHub, http.DefaultClient)
	case c.Provider.OIDC != nil:
		p, err := provider.NewOIDC(ctx, *c.Provider.OIDC)
		if err != nil {
			return nil, fmt.Errorf("build oidc provider: %w", err)
		}
		providers["oidc"] = p
	}

	secret, err := c.sessionSecret()
	if err != nil {
		return nil, err
	}

	cfg := server.Config{
		Issuer:                c.Issuer,
		DefaultAudience:       c.DefaultAudience,
		InternalAudience:      c.InternalAudience,
		TrustedIssuers:        c.TrustedIssuers,
		TokenLifetime:         lifetime,
		KnownScopes:           c.KnownScopes,
		NotebookScopes:        c.NotebookScopes,
		GroupMapping:          c.GroupMapping,
		Realm:                 c.Realm,
		WWWAuthenticateScheme: c.WWWAuthenticateScheme,
		AfterLogoutURL:        c.AfterLogoutURL,
		AllowedHosts:          c.AllowedHosts,
		SessionCookieName:     c.SessionCookieName,
		SessionSecret:         secret,
		TicketCookieName:      c.TicketCookieName,
		TicketPrefix:          c.TicketPrefix,
		SetUserHeaders:        c.SetUserHeaders,
		HTTPClient:            http.DefaultClient,
		Logger:                logger,
	}

	return server.New(cfg, keys, store, issuer, verifier, providers), nil
}
