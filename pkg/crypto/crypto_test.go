package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := crypto.RandBytes(32)
	require.NoError(t, err)

	plaintext := []byte(`{"token":"abc","email":"a@example.com"}`)
	ciphertext, err := crypto.Encrypt(plaintext, key)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := crypto.Decrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key, err := crypto.RandBytes(32)
	require.NoError(t, err)
	other, err := crypto.RandBytes(32)
	require.NoError(t, err)

	ciphertext, err := crypto.Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	_, err = crypto.Decrypt(ciphertext, other)
	require.Error(t, err)
}

func TestCookieSealOpenRoundTrip(t *testing.T) {
	key, err := crypto.RandBytes(crypto.CookieKeySize)
	require.NoError(t, err)

	sealed, err := crypto.SealCookie([]byte("key123.secret456"), key)
	require.NoError(t, err)

	got, err := crypto.OpenCookie(sealed, key)
	require.NoError(t, err)
	require.Equal(t, "key123.secret456", string(got))
}

func TestCookieOpenTamperedFails(t *testing.T) {
	key, err := crypto.RandBytes(crypto.CookieKeySize)
	require.NoError(t, err)

	sealed, err := crypto.SealCookie([]byte("payload"), key)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = crypto.OpenCookie(sealed, key)
	require.Error(t, err)
}
