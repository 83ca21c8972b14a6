// Package keyset manages the RSA keypair used to sign and verify tokens
// issued by this deployment, and its JWKS publication. It plays the role
// dex's storage.Keys/storage.VerificationKey pair plays for dex's own
// signing key, generalized to a single long-lived keypair (gafaelfawr does
// not rotate keys on the fly the way dex's rotation.go does — see
// DESIGN.md).
package keyset

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// KeySize is the RSA modulus size used for newly generated keys.
const KeySize = 2048

// Keys holds the signing keypair and its key ID.
type Keys struct {
	KID        string
	PrivateKey *rsa.PrivateKey
}

// Generate creates a fresh RSA keypair under the caller-supplied key ID.
func Generate(kid string) (*Keys, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("keyset: generate RSA key: %w", err)
	}
	return &Keys{KID: kid, PrivateKey: key}, nil
}

// EncodePEM marshals the private key to PKCS#1 PEM, the format written by
// `gafaelfawr generate-key` and read back by FromPEM.
func (k *Keys) EncodePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.PrivateKey),
	})
}

// FromPEM loads a keypair from PKCS#1 PEM bytes, such as the config's
// key_path file.
func FromPEM(kid string, data []byte) (*Keys, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("keyset: no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keyset: parse private key: %w", err)
	}
	return &Keys{KID: kid, PrivateKey: key}, nil
}

// JSONWebKey returns the private signing key in JOSE form, the shape
// token.Issuer's signer needs.
func (k *Keys) JSONWebKey() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.PrivateKey,
		KeyID:     k.KID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

// PublicJWKS returns the published JWKS document: just this deployment's
// current public key, mirroring dex's handlePublicKeys in server/handlers.go
// (gafaelfawr carries no history of retired verification keys — a key
// rotation here is an operational re-deploy, not a live rotation, so there
// is exactly one entry).
func (k *Keys) PublicJWKS() jose.JSONWebKeySet {
	pub := jose.JSONWebKey{
		Key:       &k.PrivateKey.PublicKey,
		KeyID:     k.KID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub}}
}
