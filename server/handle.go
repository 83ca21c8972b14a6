package server

import (
	"github.com/lsst-sqre/gafaelfawr/handle"
	"github.com/lsst-sqre/gafaelfawr/storage"
)

// storageHandle adapts a handle.Handle to the storage package's own
// Handle type. The two packages intentionally don't share a type: handle
// owns the encoding/parsing grammar, storage only needs the two strings
// to derive a record key and an AEAD key.
func storageHandle(h handle.Handle) storage.Handle {
	return storage.Handle{Key: h.Key, Secret: h.Secret}
}
