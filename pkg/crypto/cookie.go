package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// CookieKeySize is the required length, in bytes, of the secret passed to
// SealCookie and OpenCookie.
const CookieKeySize = 32

var errCookieShort = errors.New("crypto: sealed cookie shorter than nonce")

// SealCookie encrypts plaintext with XSalsa20-Poly1305 under a fixed
// 32-byte deployment secret. Unlike Encrypt/Decrypt, which key each record
// with a value derived from the handle it belongs to, the browser cookie
// itself must be opened before any handle is known, so it is sealed under
// the single configured session secret instead.
func SealCookie(plaintext, key []byte) ([]byte, error) {
	if len(key) != CookieKeySize {
		return nil, errors.New("crypto: cookie key must be 32 bytes")
	}
	var keyArr [32]byte
	copy(keyArr[:], key)

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &keyArr), nil
}

// OpenCookie reverses SealCookie. It returns an error on a tampered box, a
// truncated value, or a mismatched key — callers that need to treat all
// failure modes identically can just check for a non-nil error.
func OpenCookie(sealed, key []byte) ([]byte, error) {
	if len(key) != CookieKeySize {
		return nil, errors.New("crypto: cookie key must be 32 bytes")
	}
	var keyArr [32]byte
	copy(keyArr[:], key)

	if len(sealed) < 24 {
		return nil, errCookieShort
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &keyArr)
	if !ok {
		return nil, errors.New("crypto: cookie authentication failed")
	}
	return plaintext, nil
}
