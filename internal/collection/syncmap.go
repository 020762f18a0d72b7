package collection

import "sync"

// SyncMap is a generic map safe for concurrent use.
type SyncMap[K comparable, V any] struct {
	mux  sync.RWMutex
	data map[K]V
}

// Get returns the value stored under key.
func (m *SyncMap[K, V]) Get(key K) (V, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

// Put stores value under key.
func (m *SyncMap[K, V]) Put(key K, value V) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.data[key] = value
}

// Delete removes key.
func (m *SyncMap[K, V]) Delete(key K) {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.data, key)
}

// Size returns the number of stored entries.
func (m *SyncMap[K, V]) Size() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.data)
}

// Range calls f for each entry until f returns false.
// The iteration works on a snapshot so f may mutate the map.
func (m *SyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.mux.RLock()
	keys := make([]K, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.mux.RUnlock()
	for _, k := range keys {
		value, ok := m.Get(k)
		if !ok {
			continue
		}
		if !f(k, value) {
			return
		}
	}
}

// NewSyncMap creates a new SyncMap.
func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{data: map[K]V{}}
}
