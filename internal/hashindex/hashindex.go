// Package hashindex maintains the in-memory source_hash → location map
// used to detect re-ingestion of content already stored on disk.
//
// The shape — a mutex-guarded map with copy-returning accessors, rebuilt
// from the authoritative store at startup and maintained incrementally
// afterward — follows johnjansen-torua's internal/storage.MemoryStore.
// Unlike that byte-slice key-value store, hashindex never persists its
// own state: it is always derivable by re-walking the record tree, so a
// crash just means the next startup rebuild pays the walk cost again.
package hashindex

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/waynevaughan/cortex/internal/taxonomy"
)

// Entry is the location a content hash resolves to.
type Entry struct {
	ID        string
	Path      string
	Partition taxonomy.Partition
}

// Index is a concurrency-safe source_hash → Entry map.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry

	// onConflict is called when Insert sees the same hash with a
	// different Entry than what is already stored; the first entry is
	// kept either way. The package tests pass nil or a recording
	// callback; cortexd passes a logger call.
	onConflict func(hash string, existing, attempted Entry)
}

// New returns an empty Index. onConflict may be nil, in which case
// conflicting inserts are silently resolved by keeping the first entry —
// callers that want the logic-error behavior described in the spec
// (panic in tests, log-and-keep-first in production) must supply it.
func New(onConflict func(hash string, existing, attempted Entry)) *Index {
	return &Index{
		entries:    make(map[string]Entry),
		onConflict: onConflict,
	}
}

// Lookup returns the entry stored for hash, if any.
func (idx *Index) Lookup(hash string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[hash]
	return e, ok
}

// Insert records hash → entry. Re-inserting the same hash with an
// identical entry is a no-op. Re-inserting the same hash with a
// different entry invokes onConflict and keeps the original entry —
// the index never silently overwrites an existing mapping.
func (idx *Index) Insert(hash string, entry Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, ok := idx.entries[hash]
	if !ok {
		idx.entries[hash] = entry
		return
	}
	if existing == entry {
		return
	}
	if idx.onConflict != nil {
		idx.onConflict(hash, existing, entry)
	}
}

// Delete removes hash from the index. Deleting an absent hash is a no-op.
func (idx *Index) Delete(hash string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, hash)
}

// Len returns the number of entries currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Snapshot returns a copy of every hash → Entry currently indexed. The
// result is a plain map, so its iteration order is not defined.
func (idx *Index) Snapshot() map[string]Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]Entry, len(idx.entries))
	for _, h := range maps.Keys(idx.entries) {
		out[h] = idx.entries[h]
	}
	return out
}
