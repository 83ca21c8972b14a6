// Package provider implements the login state machine's upstream half
// (C9): exchanging an authorization code for the authenticated user's
// identity and group memberships. It generalizes dex's connector.Connector/
// CallbackConnector interface pair to the two concrete upstreams this
// deployment supports, GitHub and a generic OpenID Connect issuer.
package provider

import (
	"context"
	"net/http"
)

// Identity is what a successful login exchange resolves to: enough to
// build a Claims and to decide group-derived scopes (§5.2). Username and
// UID are kept distinct per §4.8's username_key/uid_key mapping: GitHub's
// login and numeric user ID are two different strings, not one value
// reused for both.
type Identity struct {
	// Username is the token subject and the value of X-Auth-Request-User:
	// GitHub's login, or the OIDC provider's "sub" claim.
	Username string
	// UID is the numeric identifier for X-Auth-Request-Uid: GitHub's
	// numeric user ID (as a string), or the OIDC provider's "sub" claim
	// when no separate numeric identifier is configured.
	UID    string
	Name   string
	Email  string
	Groups []string
}

// Provider is an upstream identity source a user can log in through.
type Provider interface {
	// LoginURL returns the redirect target that starts the upstream
	// authorization flow, carrying state through it.
	LoginURL(state string) string

	// Exchange trades an authorization code (and whatever else the
	// callback request carries, e.g. a PKCE verifier) for the user's
	// Identity.
	Exchange(ctx context.Context, r *http.Request) (Identity, error)
}
