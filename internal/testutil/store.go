package testutil

import (
	"sync"

	"bumd-go/internal/bumd"
	"bumd-go/internal/cas"
	"bumd-go/internal/model"
)

// NewTestStore creates a new in-memory content store using SHA-256 keys.
func NewTestStore() *cas.MemoryStore {
	return cas.NewMemoryStore(cas.SHA256)
}

// CountingStore wraps a ContentStore and counts calls. Safe for concurrent
// use.
type CountingStore struct {
	bumd.ContentStore

	mu     sync.Mutex
	hashes []string
	puts   []string
	gets   int
	exists int
}

// NewCountingStore wraps store.
func NewCountingStore(store bumd.ContentStore) *CountingStore {
	return &CountingStore{ContentStore: store}
}

func (c *CountingStore) HashOf(path string) (model.ContentKey, error) {
	c.mu.Lock()
	c.hashes = append(c.hashes, path)
	c.mu.Unlock()
	return c.ContentStore.HashOf(path)
}

func (c *CountingStore) Put(srcPath string, key model.ContentKey) error {
	c.mu.Lock()
	c.puts = append(c.puts, srcPath)
	c.mu.Unlock()
	return c.ContentStore.Put(srcPath, key)
}

func (c *CountingStore) Get(key model.ContentKey, destPath string) error {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.ContentStore.Get(key, destPath)
}

func (c *CountingStore) Exists(key model.ContentKey) (bool, error) {
	c.mu.Lock()
	c.exists++
	c.mu.Unlock()
	return c.ContentStore.Exists(key)
}

// Hashed returns the paths passed to HashOf, in call order.
func (c *CountingStore) Hashed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.hashes...)
}

// PutCalls returns how many times Put was called.
func (c *CountingStore) PutCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.puts)
}

// ExistsCalls returns how many times Exists was called.
func (c *CountingStore) ExistsCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exists
}

// Reset clears every counter.
func (c *CountingStore) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes = nil
	c.puts = nil
	c.gets = 0
	c.exists = 0
}
