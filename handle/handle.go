// Package handle implements the opaque session handle described in the
// data model: a (key, secret) pair that names a session record in the
// store and symmetrically encrypts it. It is the generalization of dex's
// storage.NewID single-random-ID helper to a two-part credential.
package handle

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"

	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
)

// rawLen is the number of random bytes drawn for each of key and secret.
// base64.RawURLEncoding turns 16 bytes into 22 characters, matching the
// "22 base64url chars ≈ 128 bits" requirement.
const rawLen = 16

// EncodedLen is the length, in characters, of a handle's external
// representation "<key>.<secret>".
const EncodedLen = 22 + 1 + 22

var handleRE = regexp.MustCompile(`^[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{22}$`)

// ErrMalformed is returned by Parse when the input does not match the
// handle grammar.
var ErrMalformed = errors.New("handle: malformed")

// Handle is an opaque session identifier. Key is used as the storage key;
// Secret is used as the symmetric key for the session record and must
// never be persisted server-side.
type Handle struct {
	Key    string
	Secret string
}

// New draws a fresh handle from the system CSPRNG.
func New() (Handle, error) {
	key, err := randomToken()
	if err != nil {
		return Handle{}, err
	}
	secret, err := randomToken()
	if err != nil {
		return Handle{}, err
	}
	return Handle{Key: key, Secret: secret}, nil
}

func randomToken() (string, error) {
	b, err := crypto.RandBytes(rawLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Encode returns the handle's external representation, "<key>.<secret>".
func (h Handle) Encode() string {
	return h.Key + "." + h.Secret
}

// String implements fmt.Stringer without ever exposing Secret, so a Handle
// accidentally passed to a logging call doesn't leak the session key.
func (h Handle) String() string {
	return h.Key + ".***"
}

// Parse decodes a handle previously produced by Encode. It returns
// ErrMalformed if s does not match the handle grammar; callers upstream of
// the session store must treat handles as opaque and never accept one that
// fails to parse.
func Parse(s string) (Handle, error) {
	if !handleRE.MatchString(s) {
		return Handle{}, ErrMalformed
	}
	parts := strings.SplitN(s, ".", 2)
	return Handle{Key: parts[0], Secret: parts[1]}, nil
}
