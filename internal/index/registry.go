package index

import (
	"path/filepath"
	"sync"

	"github.com/bfv/edtable/internal/store"
)

// Indexes are process-wide, one per store root. They are created on first
// access and dropped explicitly; two roots never share an index.
var (
	registryMu sync.Mutex
	registry   = map[string]*Index{}
)

// ForRoot returns the Index of the store rooted at root, creating the store
// handle and index on first use.
func ForRoot(root string) *Index {
	key := rootKey(root)
	registryMu.Lock()
	defer registryMu.Unlock()
	if ix, ok := registry[key]; ok {
		return ix
	}
	ix := New(store.New(root))
	registry[key] = ix
	return ix
}

// Drop closes and forgets the Index for root.
func Drop(root string) {
	key := rootKey(root)
	registryMu.Lock()
	ix, ok := registry[key]
	delete(registry, key)
	registryMu.Unlock()
	if ok {
		ix.Close()
	}
}

// Store returns the store the index projects.
func (ix *Index) Store() *store.Store { return ix.st }

func rootKey(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}
