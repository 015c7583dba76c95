package bumd

import "bumd-go/internal/model"

// ContentStore is a durable content-addressed object store.
// It knows nothing about paths, runs or metadata.
type ContentStore interface {
	// Exists reports whether an object with the exact key is durably stored.
	Exists(key model.ContentKey) (bool, error)

	// Put stores the contents of srcPath under key. The content is verified
	// while it is written; a digest that differs from key fails with
	// ErrCorruption and leaves nothing behind. Storing an existing key is a
	// no-op.
	Put(srcPath string, key model.ContentKey) error

	// Get materializes the object at destPath. Missing keys fail with
	// ErrNotFound.
	Get(key model.ContentKey, destPath string) error

	// HashOf computes the content key of a regular file by streaming it.
	HashOf(path string) (model.ContentKey, error)
}
