package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

const (
	jwksPositiveCacheTTL = 60 * time.Minute
	jwksNegativeCacheTTL = 60 * time.Second
)

// maxIATSkew bounds how far into the future a token's iat may claim to be,
// per §4.5 step 4.
const maxIATSkew = 60 * time.Second

// Verifier checks the signature, issuer, and expiry of tokens presented to
// the auth endpoint (C6). It trusts this deployment's own keyset outright
// and fetches/caches JWKS documents for any other configured trusted
// issuer, coalescing concurrent fetches for the same (issuer, kid) pair
// through singleflight.Group — generalized from dex's OIDC connector,
// which does the equivalent coalescing for provider discovery documents
// via oidc.Provider's internal client, but here applied directly to JWKS
// lookups since gafaelfawr is itself the relying party, not a broker.
type Verifier struct {
	localIssuer string
	localJWKS   jose.JSONWebKeySet
	httpClient  *http.Client
	trusted     map[string]bool
	audiences   map[string]bool

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	key     *jose.JSONWebKey
	expires time.Time
}

// NewVerifier builds a Verifier that trusts localIssuer (verified directly
// against localJWKS, no network round trip) plus any issuer in
// trustedIssuers (verified by fetching <issuer>/.well-known/jwks.json).
// acceptedAudiences is the configured set a verified token's aud must
// intersect (§4.5 step 4); an empty set accepts any audience, matching a
// deployment that configures no restriction.
func NewVerifier(localIssuer string, localJWKS jose.JSONWebKeySet, trustedIssuers []string, acceptedAudiences []string, httpClient *http.Client) *Verifier {
	trusted := make(map[string]bool, len(trustedIssuers)+1)
	trusted[localIssuer] = true
	for _, iss := range trustedIssuers {
		trusted[iss] = true
	}
	var audiences map[string]bool
	if len(acceptedAudiences) > 0 {
		audiences = make(map[string]bool, len(acceptedAudiences))
		for _, aud := range acceptedAudiences {
			audiences[aud] = true
		}
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Verifier{
		localIssuer: localIssuer,
		localJWKS:   localJWKS,
		httpClient:  httpClient,
		trusted:     trusted,
		audiences:   audiences,
		cache:       make(map[string]cacheEntry),
	}
}

// Verify parses raw, checks its issuer is one this Verifier trusts,
// resolves and validates the signing key, checks the signature, and
// checks expiry. It does not check scopes — authorize.Evaluate does that
// against the returned Claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	tok, err := jose.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return Claims{}, fmt.Errorf("token: parse: %w", err)
	}
	if len(tok.Signatures) != 1 {
		return Claims{}, fmt.Errorf("token: expected exactly one signature")
	}
	kid := tok.Signatures[0].Header.KeyID

	var unverified Claims
	if err := json.Unmarshal(tok.UnsafePayloadWithoutVerification(), &unverified); err != nil {
		return Claims{}, fmt.Errorf("token: decode claims: %w", err)
	}
	if !v.trusted[unverified.Issuer] {
		return Claims{}, fmt.Errorf("token: untrusted issuer %q", unverified.Issuer)
	}

	key, err := v.key(ctx, unverified.Issuer, kid)
	if err != nil {
		return Claims{}, err
	}

	payload, err := tok.Verify(key)
	if err != nil {
		return Claims{}, fmt.Errorf("token: signature verification: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("token: decode verified claims: %w", err)
	}

	if err := v.validate(claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// validate applies §4.5 steps 4-5: expiry, iat skew, accepted audience, and
// required-claim presence. Signature and issuer trust are already checked
// by the caller before this runs.
func (v *Verifier) validate(claims Claims) error {
	now := time.Now()

	if claims.Expiry != 0 && now.Unix() >= claims.Expiry {
		return fmt.Errorf("token: expired")
	}
	if claims.IssuedAt != 0 && time.Unix(claims.IssuedAt, 0).After(now.Add(maxIATSkew)) {
		return fmt.Errorf("token: iat too far in the future")
	}
	if v.audiences != nil && !v.audiences[claims.Audience] {
		return fmt.Errorf("token: unaccepted audience %q", claims.Audience)
	}

	switch {
	case claims.Subject == "":
		return fmt.Errorf("token: missing required claim sub")
	case claims.JTI == "":
		return fmt.Errorf("token: missing required claim jti")
	case claims.Scope == "":
		return fmt.Errorf("token: missing required claim scope")
	case claims.Audience == "":
		return fmt.Errorf("token: missing required claim aud")
	case claims.Expiry == 0:
		return fmt.Errorf("token: missing required claim exp")
	case claims.IssuedAt == 0:
		return fmt.Errorf("token: missing required claim iat")
	}
	return nil
}

func (v *Verifier) key(ctx context.Context, iss, kid string) (*jose.JSONWebKey, error) {
	if iss == v.localIssuer {
		keys := v.localJWKS.Key(kid)
		if len(keys) == 0 {
			return nil, fmt.Errorf("token: unknown local kid %q", kid)
		}
		return &keys[0], nil
	}

	cacheKey := iss + "#" + kid
	v.mu.Lock()
	entry, ok := v.cache[cacheKey]
	v.mu.Unlock()
	if ok && time.Now().Before(entry.expires) {
		if entry.key == nil {
			return nil, fmt.Errorf("token: negatively cached kid %q for issuer %q", kid, iss)
		}
		return entry.key, nil
	}

	result, err, _ := v.group.Do(cacheKey, func() (interface{}, error) {
		return v.fetchKey(ctx, iss, kid)
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.cache[cacheKey] = cacheEntry{expires: time.Now().Add(jwksNegativeCacheTTL)}
		return nil, err
	}
	key := result.(*jose.JSONWebKey)
	v.cache[cacheKey] = cacheEntry{key: key, expires: time.Now().Add(jwksPositiveCacheTTL)}
	return key, nil
}

func (v *Verifier) fetchKey(ctx context.Context, iss, kid string) (*jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iss+"/.well-known/jwks.json", nil)
	if err != nil {
		return nil, fmt.Errorf("token: build jwks request for %q: %w", iss, err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token: fetch jwks from %q: %w", iss, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token: fetch jwks from %q: status %d", iss, resp.StatusCode)
	}

	var jwks jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("token: decode jwks from %q: %w", iss, err)
	}

	keys := jwks.Key(kid)
	if len(keys) == 0 {
		return nil, fmt.Errorf("token: kid %q not found in jwks from %q", kid, iss)
	}
	return &keys[0], nil
}
