package server

import (
	"log/slog"
	"net/http"
	"time"
)

// Config is the frozen, already-resolved configuration a Server is built
// from: every YAML/env detail has already been parsed and validated by
// cmd/gafaelfawr's Config.Server() by the time this reaches NewServer,
// mirroring the split between dex's cmd/dex.Config (the YAML-facing shape)
// and server.Config (the plain Go values server.NewServer actually
// consumes).
type Config struct {
	// Issuer is this deployment's own token issuer ("iss" on tokens this
	// server mints) and also the prefix for its JWKS/OIDC discovery URLs.
	Issuer string
	// DefaultAudience is the "aud" newly-issued tokens carry absent an
	// explicit audience reissue.
	DefaultAudience string
	// InternalAudience is the audience value that authorizes an
	// internal-audience reissue (§4.10 case 2).
	InternalAudience string
	// TrustedIssuers lists upstream issuers (beyond Issuer itself) whose
	// JWKS this deployment will fetch and trust when verifying a token.
	TrustedIssuers []string

	TokenLifetime time.Duration

	// KnownScopes is the full set of scopes this deployment recognizes,
	// used by the token UI to render a checkbox per scope (C11).
	KnownScopes []string
	// NotebookScopes is the fixed scope set the ?notebook=true alias
	// expands to.
	NotebookScopes []string
	// GroupMapping maps an upstream group name to the scopes a member of
	// that group is granted, applied when normalizing a login identity
	// into token scopes (C9).
	GroupMapping map[string][]string

	Realm                 string
	WWWAuthenticateScheme string // "Bearer" or "Basic"; defaults to "Bearer"

	AfterLogoutURL string
	// AllowedHosts bounds the open-redirect check on /login's return_url
	// (§4.8) beyond the current request host.
	AllowedHosts []string

	SessionCookieName string // defaults to "gafaelfawr"
	SessionSecret     [32]byte

	// TicketCookieName/TicketPrefix recognize the legacy oauth2_proxy
	// ticket cookie consulted by the ingress-exchange reissue case
	// (§4.10 case 1); TicketPrefix defaults to "oauth2_proxy".
	TicketCookieName string
	TicketPrefix     string

	// SetUserHeaders gates emission of the X-Auth-Request-{Email,User,
	// Uid,Groups,Token,Token-Ticket} identity headers on a successful /auth
	// decision.
	SetUserHeaders bool

	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now returns the current time; overridable in tests, defaulting to
	// time.Now().UTC() the way storage/health.go's health check does.
	Now func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c Config) sessionCookieName() string {
	if c.SessionCookieName != "" {
		return c.SessionCookieName
	}
	return "gafaelfawr"
}

func (c Config) ticketPrefix() string {
	if c.TicketPrefix != "" {
		return c.TicketPrefix
	}
	return "oauth2_proxy"
}

func (c Config) ticketCookieName() string {
	if c.TicketCookieName != "" {
		return c.TicketCookieName
	}
	return c.ticketPrefix()
}

func (c Config) wwwAuthenticateScheme() string {
	if c.WWWAuthenticateScheme != "" {
		return c.WWWAuthenticateScheme
	}
	return "Bearer"
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
