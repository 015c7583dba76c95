package cas

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/btree"

	"bumd-go/internal/bumd"
	"bumd-go/internal/model"
)

// MemoryStore is an in-memory ContentStore, useful for testing.
// Objects are kept in key order. This implementation is safe for concurrent
// use.
type MemoryStore struct {
	alg     Algorithm
	mu      sync.RWMutex
	objects *btree.Map[model.ContentKey, []byte]
	writes  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(alg Algorithm) *MemoryStore {
	return &MemoryStore{
		alg:     alg,
		objects: btree.NewMap[model.ContentKey, []byte](0),
	}
}

func (m *MemoryStore) Exists(key model.ContentKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects.Get(key)
	return ok, nil
}

// Put reads srcPath fully, verifies it against key and stores it once.
func (m *MemoryStore) Put(srcPath string, key model.ContentKey) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return &bumd.EntryError{Op: "read", Path: srcPath, Err: err}
	}

	h := m.alg.newHash()
	h.Write(data)
	if got := hex.EncodeToString(h.Sum(nil)); got != string(key) {
		return fmt.Errorf("%w: %s hashes to %s, expected %s", bumd.ErrCorruption, srcPath, got, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects.Get(key); ok {
		return nil
	}
	m.objects.Set(key, data)
	m.writes++
	return nil
}

func (m *MemoryStore) Get(key model.ContentKey, destPath string) error {
	m.mu.RLock()
	data, ok := m.objects.Get(key)
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("content %s: %w", key, bumd.ErrNotFound)
	}
	return writeAtomic(destPath, bytes.NewReader(data))
}

func (m *MemoryStore) HashOf(path string) (model.ContentKey, error) {
	return hashFile(m.alg, path)
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects.Len()
}

// Writes returns how many objects were actually written.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Keys returns the stored keys in ascending order.
func (m *MemoryStore) Keys() []model.ContentKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]model.ContentKey, 0, m.objects.Len())
	m.objects.Scan(func(k model.ContentKey, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Delete drops an object. Used by tests to simulate a damaged repository.
func (m *MemoryStore) Delete(key model.ContentKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects.Delete(key)
}

// Compile-time check that MemoryStore implements bumd.ContentStore
var _ bumd.ContentStore = (*MemoryStore)(nil)
