package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"bumd-go/internal/bumd"
	"bumd-go/internal/model"
)

// Algorithm names the digest used to derive content keys.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm accepts an algorithm name; empty selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm: %s", name)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// keyLen is the hex length of a key. Both algorithms produce 32 bytes.
const keyLen = 64

// ValidKey reports whether key looks like a lowercase hex digest.
func ValidKey(key model.ContentKey) bool {
	if len(key) != keyLen {
		return false
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// hashFile streams path through the algorithm's digest. Failures to read
// the source are entry errors.
func hashFile(alg Algorithm, path string) (model.ContentKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &bumd.EntryError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	h := alg.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", &bumd.EntryError{Op: "read", Path: path, Err: err}
	}
	return model.ContentKey(hex.EncodeToString(h.Sum(nil))), nil
}
