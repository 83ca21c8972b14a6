package crypto

import "errors"

var errShortCiphertext = errors.New("crypto: ciphertext shorter than nonce")
