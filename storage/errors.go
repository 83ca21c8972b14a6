package storage

import "errors"

// ErrNotFound is returned by Backend.Get (and, through it, by Store) when a
// key is absent. The session store's contract treats a missing key, a
// decryption failure, and corrupt JSON identically (see Store.GetSession),
// so a caller that wants that behavior checks only for ErrNotFound, not for
// the more specific crypto/json errors.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is a sentinel for a key collision. Backend has no
// create-only operation, and no Backend or Store in this repository returns
// it.
var ErrAlreadyExists = errors.New("already exists")
