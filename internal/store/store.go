package store

import (
	"sort"
	"sync"
)

const DefaultHistorySize = 20

// MemoryStore is a key/value store for cross-request state. Every mutation
// first pushes a deep copy of the current contents onto a bounded history so
// it can be undone.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]any
	history *snapshotRing
}

func NewMemoryStore(historySize int) *MemoryStore {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &MemoryStore{
		data:    make(map[string]any),
		history: newSnapshotRing(historySize),
	}
}

func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return Clone(value), ok
}

func (s *MemoryStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.push(cloneMap(s.data))
	s.data[key] = Clone(value)
}

// Delete removes key and reports whether it was present. Deleting a missing
// key does not touch the history.
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return false
	}
	s.history.push(cloneMap(s.data))
	delete(s.data, key)
	return true
}

// Keys returns the stored keys sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the contents.
func (s *MemoryStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.data)
}

// Undo restores the contents from before the last mutation. It returns false
// when the history is empty.
func (s *MemoryStore) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.history.pop()
	if !ok {
		return false
	}
	s.data = previous
	return true
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.push(cloneMap(s.data))
	s.data = make(map[string]any)
}

// HistoryLen is the number of snapshots available to Undo.
func (s *MemoryStore) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.count
}

// snapshotRing keeps the most recent snapshots; pushing onto a full ring
// overwrites the oldest one.
type snapshotRing struct {
	items []map[string]any
	head  int
	count int
}

func newSnapshotRing(size int) *snapshotRing {
	return &snapshotRing{items: make([]map[string]any, size)}
}

func (r *snapshotRing) push(snapshot map[string]any) {
	r.items[r.head] = snapshot
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

func (r *snapshotRing) pop() (map[string]any, bool) {
	if r.count == 0 {
		return nil, false
	}
	r.head = (r.head - 1 + len(r.items)) % len(r.items)
	snapshot := r.items[r.head]
	r.items[r.head] = nil
	r.count--
	return snapshot, true
}

// Clone deep-copies maps and slices of JSON-shaped values.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}
