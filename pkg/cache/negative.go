package cache

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// negativeFilter remembers keys confirmed absent upstream.
//
// A bloom filter answers the common "never seen" case without touching the
// absence map. A filter hit is confirmed against the exact timestamped map,
// so a removed or expired key is never reported absent: the filter only
// decides how often the map is consulted. Removals cannot be applied to a
// bloom filter, so the filter is rebuilt from the map on the next lookup
// after a removal and whenever the expiry window rotates.
type negativeFilter struct {
	mu        sync.Mutex
	ttl       time.Duration
	fpRate    float64
	capacity  uint
	filter    *bloom.BloomFilter
	absent    map[string]time.Time
	stale     bool
	rotatedAt time.Time
	now       func() time.Time

	falsePositives uint64
	rebuilds       uint64
}

func newNegativeFilter(capacity uint, fpRate float64, ttl time.Duration, now func() time.Time) *negativeFilter {
	n := &negativeFilter{
		ttl:      ttl,
		fpRate:   fpRate,
		capacity: capacity,
		absent:   make(map[string]time.Time),
		now:      now,
	}
	n.filter = bloom.NewWithEstimates(capacity, fpRate)
	n.rotatedAt = now()
	return n
}

// add records key as absent as of now.
func (n *negativeFilter) add(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.absent[key] = n.now()
	n.filter.AddString(key)
}

// remove forgets key. Called whenever a value for key is stored.
func (n *negativeFilter) remove(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.absent[key]; ok {
		delete(n.absent, key)
		n.stale = true
	}
}

// contains reports whether key is known absent and the record is fresh.
func (n *negativeFilter) contains(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if n.stale || now.Sub(n.rotatedAt) >= n.ttl {
		n.rebuildLocked(now)
	}
	if !n.filter.TestString(key) {
		return false
	}
	at, ok := n.absent[key]
	if !ok {
		n.falsePositives++
		return false
	}
	if now.Sub(at) >= n.ttl {
		delete(n.absent, key)
		n.stale = true
		return false
	}
	return true
}

// rebuildLocked drops expired records and rebuilds the filter from the rest.
func (n *negativeFilter) rebuildLocked(now time.Time) {
	for k, at := range n.absent {
		if now.Sub(at) >= n.ttl {
			delete(n.absent, k)
		}
	}
	size := n.capacity
	if need := uint(len(n.absent)) * 2; need > size {
		size = need
	}
	n.filter = bloom.NewWithEstimates(size, n.fpRate)
	for k := range n.absent {
		n.filter.AddString(k)
	}
	n.stale = false
	n.rotatedAt = now
	n.rebuilds++
}

func (n *negativeFilter) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.absent = make(map[string]time.Time)
	n.filter = bloom.NewWithEstimates(n.capacity, n.fpRate)
	n.stale = false
	n.rotatedAt = n.now()
}

type negativeStats struct {
	keys           int
	falsePositives uint64
	rebuilds       uint64
}

func (n *negativeFilter) stats() negativeStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return negativeStats{keys: len(n.absent), falsePositives: n.falsePositives, rebuilds: n.rebuilds}
}
