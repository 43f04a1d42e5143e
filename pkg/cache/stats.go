package cache

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	MemoryHits        uint64 `json:"memory_hits"`
	DurableHits       uint64 `json:"durable_hits"`
	NegativeHits      uint64 `json:"negative_hits"`
	Misses            uint64 `json:"misses"`
	Evictions         uint64 `json:"evictions"`
	Spills            uint64 `json:"spills"`
	SpillErrors       uint64 `json:"spill_errors"`
	Rejected          uint64 `json:"rejected"`
	IntegrityFailures uint64 `json:"integrity_failures"`
	BackendErrors     uint64 `json:"backend_errors"`

	MemoryEntries  int    `json:"memory_entries"`
	MemoryBytes    int64  `json:"memory_bytes"`
	PinnedEntries  int    `json:"pinned_entries"`
	PendingSpills  int    `json:"pending_spills"`
	AbsentKeys     int    `json:"absent_keys"`
	FalsePositives uint64 `json:"filter_false_positives"`
	FilterRebuilds uint64 `json:"filter_rebuilds"`
}

// Hits returns the total number of lookups answered with data.
func (s Stats) Hits() uint64 { return s.MemoryHits + s.DurableHits }

// HitRate returns the fraction of lookups answered without going upstream,
// counting negative hits as answered.
func (s Stats) HitRate() float64 {
	answered := s.Hits() + s.NegativeHits
	total := answered + s.Misses
	if total == 0 {
		return 0
	}
	return float64(answered) / float64(total)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	mem := c.mem.stats()
	neg := c.neg.stats()
	return Stats{
		MemoryHits:        c.memoryHits.Load(),
		DurableHits:       c.durableHits.Load(),
		NegativeHits:      c.negativeHits.Load(),
		Misses:            c.misses.Load(),
		Evictions:         c.evictions.Load(),
		Spills:            c.spills.Load(),
		SpillErrors:       c.spillErrors.Load(),
		Rejected:          c.rejected.Load(),
		IntegrityFailures: c.integrityFailures.Load(),
		BackendErrors:     c.backendErrors.Load(),
		MemoryEntries:     mem.entries,
		MemoryBytes:       mem.bytes,
		PinnedEntries:     mem.pinned,
		PendingSpills:     mem.pending,
		AbsentKeys:        neg.keys,
		FalsePositives:    neg.falsePositives,
		FilterRebuilds:    neg.rebuilds,
	}
}
