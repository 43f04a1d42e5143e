package cache

import (
	"container/list"
	"sync"
	"time"
)

// entryKind distinguishes the two payload families stored in the memory tier.
type entryKind uint8

const (
	kindMetadata entryKind = iota
	kindArtifact
)

func (k entryKind) String() string {
	if k == kindArtifact {
		return "artifact"
	}
	return "metadata"
}

// memEntry is one entry of the memory tier. Data is never mutated after the
// entry is inserted; replacing a value installs a new memEntry.
type memEntry struct {
	key        string
	kind       entryKind
	data       []byte
	expiresAt  time.Time // zero means no expiry
	durable    bool      // payload already reached the durable tier
	lastAccess time.Time
	pins       int
	elem       *list.Element
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// memoryTier is an exact LRU bounded by entry count and, optionally, total
// payload bytes.
//
// Entries with a non-zero pin count are skipped by eviction. Evicted entries
// that are not yet durable move to a pending map and stay readable until the
// caller reports the spill as done; the tier itself performs no I/O.
type memoryTier struct {
	mu         sync.Mutex
	entries    map[string]*memEntry
	order      *list.List // front = most recently used
	pending    map[string]*memEntry
	maxEntries int
	maxBytes   int64
	bytes      int64
	now        func() time.Time
}

func newMemoryTier(maxEntries int, maxBytes int64, now func() time.Time) *memoryTier {
	return &memoryTier{
		entries:    make(map[string]*memEntry),
		order:      list.New(),
		pending:    make(map[string]*memEntry),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		now:        now,
	}
}

// fits reports whether a payload of size n may live in memory at all.
func (m *memoryTier) fits(n int) bool {
	return m.maxEntries > 0 && (m.maxBytes <= 0 || int64(n) <= m.maxBytes)
}

// get returns a copy of the payload and whether it was found. Pending
// entries are served but not promoted back into the LRU order.
func (m *memoryTier) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok {
		if e.expired(now) {
			if e.pins == 0 {
				m.removeLocked(e)
			}
			return nil, false
		}
		e.lastAccess = now
		m.order.MoveToFront(e.elem)
		return clone(e.data), true
	}
	if e, ok := m.pending[key]; ok && !e.expired(now) {
		return clone(e.data), true
	}
	return nil, false
}

// contains reports whether a live entry exists without touching LRU order.
func (m *memoryTier) contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && !e.expired(m.now())
}

// acquire pins an entry and returns it. The caller reads e.data without
// copying, must not modify it, and must call release exactly once.
func (m *memoryTier) acquire(key string) (*memEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		return nil, false
	}
	e.pins++
	e.lastAccess = m.now()
	m.order.MoveToFront(e.elem)
	return e, true
}

// release drops a pin taken by acquire and returns entries that became
// evictable and must be spilled.
func (m *memoryTier) release(e *memEntry) []*memEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.pins > 0 {
		e.pins--
	}
	return m.evictLocked()
}

// put inserts or replaces an entry and returns the evicted entries. Victims
// with durable=false are parked in the pending map; the caller must write
// them to the durable tier and then call spilled.
func (m *memoryTier) put(key string, kind entryKind, data []byte, expiresAt time.Time, durable bool) (evicted []*memEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if old, ok := m.entries[key]; ok {
		m.bytes -= int64(len(old.data))
		m.order.Remove(old.elem)
		delete(m.entries, key)
	}
	delete(m.pending, key)

	e := &memEntry{
		key:        key,
		kind:       kind,
		data:       data,
		expiresAt:  expiresAt,
		durable:    durable,
		lastAccess: now,
	}
	e.elem = m.order.PushFront(e)
	m.entries[key] = e
	m.bytes += int64(len(data))

	return m.evictLocked()
}

// overLimitLocked reports whether the tier exceeds either budget.
func (m *memoryTier) overLimitLocked() bool {
	if len(m.entries) > m.maxEntries {
		return true
	}
	return m.maxBytes > 0 && m.bytes > m.maxBytes
}

// evictLocked removes least recently used, unpinned entries until the tier is
// within budget. If every remaining entry is pinned the tier stays over
// budget until a release.
func (m *memoryTier) evictLocked() []*memEntry {
	var evicted []*memEntry
	elem := m.order.Back()
	for m.overLimitLocked() && elem != nil {
		e := elem.Value.(*memEntry)
		elem = elem.Prev()
		if e.pins > 0 {
			continue
		}
		m.removeLocked(e)
		if !e.durable && !e.expired(m.now()) {
			m.pending[e.key] = e
		}
		evicted = append(evicted, e)
	}
	return evicted
}

func (m *memoryTier) removeLocked(e *memEntry) {
	m.order.Remove(e.elem)
	delete(m.entries, e.key)
	m.bytes -= int64(len(e.data))
}

// spilled clears the pending slot for e once its payload is durable or the
// spill has been abandoned. A newer pending entry for the same key is kept.
func (m *memoryTier) spilled(e *memEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[e.key] == e {
		delete(m.pending, e.key)
	}
}

// markDurable records that e reached the durable tier, unless it has been
// replaced in the meantime.
func (m *memoryTier) markDurable(e *memEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[e.key] == e {
		e.durable = true
	}
}

// dirty returns every live entry that has not reached the durable tier.
func (m *memoryTier) dirty() []*memEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*memEntry
	now := m.now()
	for elem := m.order.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*memEntry)
		if !e.durable && !e.expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// delete drops a key from the tier, including any pending spill.
func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.removeLocked(e)
	}
	delete(m.pending, key)
}

// clear drops everything, pinned entries included. Readers holding a pinned
// slice keep a valid view since payloads are never mutated.
func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memEntry)
	m.pending = make(map[string]*memEntry)
	m.order.Init()
	m.bytes = 0
}

type memoryStats struct {
	entries int
	bytes   int64
	pinned  int
	pending int
}

func (m *memoryTier) stats() memoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memoryStats{entries: len(m.entries), bytes: m.bytes, pending: len(m.pending)}
	for _, e := range m.entries {
		if e.pins > 0 {
			s.pinned++
		}
	}
	return s
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
