package token

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/lsst-sqre/gafaelfawr/keyset"
)

// Issuer mints signed JWTs for this deployment, the generalization of dex's
// server.go ID-token signing path (which builds a josejwt.Claims and calls
// key.Sign) to gafaelfawr's own claim set and reissue semantics (C10)
// rather than an OIDC id_token alone.
type Issuer struct {
	issuer   string
	audience string
	lifetime time.Duration
	signer   jose.Signer
}

// NewIssuer builds an Issuer that signs with keys using RS256, the
// algorithm keyset.Keys.JSONWebKey advertises.
func NewIssuer(keys *keyset.Keys, iss, aud string, lifetime time.Duration) (*Issuer, error) {
	jwk := keys.JSONWebKey()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jwk},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", jwk.KeyID),
	)
	if err != nil {
		return nil, fmt.Errorf("token: create signer: %w", err)
	}
	return &Issuer{issuer: iss, audience: aud, lifetime: lifetime, signer: signer}, nil
}

// Issue mints a token for subject, good for i.lifetime from now. act, if
// non-nil, records the token this one was exchanged from.
func (i *Issuer) Issue(now time.Time, subject, email, name, uid string, groups, scopes []string, act *Actor) (string, Claims, error) {
	return i.IssueWithOptions(now, subject, email, name, uid, groups, scopes, act, IssueOptions{})
}

// IssueOptions overrides the defaults Issue otherwise applies, needed by
// the reissue policy (C10): an ingress exchange must carry forward the
// legacy ticket's key as the new token's jti, and an internal-audience
// exchange must mint against a narrower audience than the issuer's
// configured default.
type IssueOptions struct {
	// JTI, if non-empty, is used verbatim instead of drawing a fresh one.
	JTI string
	// Audience, if non-empty, overrides the issuer's configured default.
	Audience string
}

// IssueWithOptions is Issue with the reissue-policy overrides applied.
func (i *Issuer) IssueWithOptions(now time.Time, subject, email, name, uid string, groups, scopes []string, act *Actor, opts IssueOptions) (string, Claims, error) {
	jti := opts.JTI
	if jti == "" {
		jti = uuid.NewString()
	}
	aud := opts.Audience
	if aud == "" {
		aud = i.audience
	}

	claims := Claims{
		Issuer:   i.issuer,
		Subject:  subject,
		Audience: aud,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(i.lifetime).Unix(),
		JTI:      jti,
		Email:    email,
		Name:     name,
		UID:      uid,
		Groups:   groups,
		Scope:    strings.Join(scopes, " "),
		Act:      act,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: marshal claims: %w", err)
	}

	jws, err := i.signer.Sign(payload)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: sign: %w", err)
	}

	raw, err := jws.CompactSerialize()
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: serialize: %w", err)
	}
	return raw, claims, nil
}
