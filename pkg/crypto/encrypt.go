// Package crypto holds the symmetric-encryption primitives shared by the
// session store and the browser cookie codec.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

const aesKeySize = 32 // force 256-bit AES

// Encrypt encrypts data using 256-bit AES-GCM. This both hides the content
// of the data and provides a check that it hasn't been altered. Output
// takes the form nonce|ciphertext|tag where '|' indicates concatenation.
//
// Used to seal session records at rest; the key is derived from the handle
// secret, never a single fixed deployment-wide key, so a leaked record
// cannot be decrypted without also holding the handle that names it.
// Login-state records are not sealed with it: they are stored as plain JSON.
func Encrypt(plaintext, key []byte) (ciphertext []byte, err error) {
	if len(key) != aesKeySize {
		return nil, aes.KeySizeError(len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce, err := RandBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts data using 256-bit AES-GCM. Expects input of the form
// nonce|ciphertext|tag where '|' indicates concatenation. Returns an error
// for any of: wrong key, truncated input, or a tampered tag — callers that
// need to treat all three identically (storage.Store.GetSession does) just check
// for a non-nil error.
func Decrypt(ciphertext, key []byte) (plaintext []byte, err error) {
	if len(key) != aesKeySize {
		return nil, aes.KeySizeError(len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errShortCiphertext
	}

	return gcm.Open(nil, ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():], nil)
}
