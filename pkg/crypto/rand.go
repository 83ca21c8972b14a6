package crypto

import (
	"crypto/rand"
	"errors"
)

// RandBytes draws n cryptographically secure random bytes. Used for AEAD
// nonces and, via handle.New, for handle keys and secrets.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	got, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	if n != got {
		return nil, errors.New("unable to generate enough random data")
	}
	return b, nil
}
