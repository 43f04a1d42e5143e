package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/quiver/pkg/observability"
)

// Defaults applied by [Config.WithDefaults].
const (
	DefaultMemoryEntries     = 1000
	DefaultMaxEntrySize      = 64 << 20
	DefaultMetadataTTL       = 24 * time.Hour
	DefaultNegativeTTL       = time.Hour
	DefaultFalsePositiveRate = 0.01
	DefaultNegativeCapacity  = 10000
)

// Config configures a [Cache]. The zero value is a disabled cache; call
// WithDefaults to fill unset fields.
type Config struct {
	Enabled           bool          // When false every lookup is a Miss
	MemoryEntries     int           // Memory tier capacity in entries
	MemoryBytes       int64         // Memory tier payload budget; 0 means unbounded
	MaxEntrySize      int64         // Metadata larger than this is rejected
	MetadataTTL       time.Duration // Freshness of metadata entries
	NegativeTTL       time.Duration // How long an absence record is trusted
	FalsePositiveRate float64       // Bloom filter target false-positive rate
	NegativeCapacity  uint          // Expected number of absent keys
	Keyer             Keyer         // Key layout; defaults to NewDefaultKeyer("")
	Logger            *log.Logger   // Defaults to a discard logger

	// now overrides the clock in tests.
	now func() time.Time
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MemoryEntries <= 0 {
		c.MemoryEntries = DefaultMemoryEntries
	}
	if c.MaxEntrySize <= 0 {
		c.MaxEntrySize = DefaultMaxEntrySize
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = DefaultMetadataTTL
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = DefaultNegativeTTL
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = DefaultFalsePositiveRate
	}
	if c.NegativeCapacity == 0 {
		c.NegativeCapacity = DefaultNegativeCapacity
	}
	if c.Keyer == nil {
		c.Keyer = NewDefaultKeyer("")
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Status classifies a lookup.
type Status int

const (
	// Miss means the key is unknown and the caller must ask upstream.
	Miss Status = iota
	// Hit means Data holds the cached payload.
	Hit
	// NegativeHit means the key was recently confirmed absent upstream.
	NegativeHit
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case NegativeHit:
		return "negative-hit"
	default:
		return "miss"
	}
}

// Tier names where a Hit was served from.
type Tier string

const (
	TierNone    Tier = ""
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
)

// Result is the outcome of a lookup. Data is a private copy owned by the
// caller.
type Result struct {
	Status Status
	Data   []byte
	Tier   Tier
}

// Cache is one logical cache made of a bounded in-memory LRU in front of a
// durable [Backend], plus a negative filter of keys confirmed absent upstream.
//
// Lookups go memory, then durable tier (promoting hits into memory), then the
// negative filter, and report Miss otherwise. Metadata is written back: it
// reaches the durable tier when evicted from memory or on Flush and Close.
// Artifacts are written through after their digest has been verified.
//
// The cache is best effort. Backend failures are logged and degrade to
// misses; they never turn a lookup into an error. Cache is safe for
// concurrent use.
type Cache struct {
	cfg     Config
	backend Backend
	mem     *memoryTier
	neg     *negativeFilter
	logger  *log.Logger
	writes  singleflight.Group

	closeOnce sync.Once
	closed    atomic.Bool

	memoryHits        atomic.Uint64
	durableHits       atomic.Uint64
	negativeHits      atomic.Uint64
	misses            atomic.Uint64
	evictions         atomic.Uint64
	spills            atomic.Uint64
	spillErrors       atomic.Uint64
	rejected          atomic.Uint64
	integrityFailures atomic.Uint64
	backendErrors     atomic.Uint64
}

// New creates a cache over backend. A nil backend is replaced by
// [NullBackend], giving a memory-only cache.
func New(cfg Config, backend Backend) *Cache {
	cfg = cfg.WithDefaults()
	if backend == nil {
		backend = NullBackend{}
	}
	return &Cache{
		cfg:     cfg,
		backend: backend,
		mem:     newMemoryTier(cfg.MemoryEntries, cfg.MemoryBytes, cfg.now),
		neg:     newNegativeFilter(cfg.NegativeCapacity, cfg.FalsePositiveRate, cfg.NegativeTTL, cfg.now),
		logger:  cfg.Logger,
	}
}

// Config returns the effective configuration.
func (c *Cache) Config() Config { return c.cfg }

// Backend returns the durable tier.
func (c *Cache) Backend() Backend { return c.backend }

// Enabled reports whether lookups can ever hit.
func (c *Cache) Enabled() bool { return c.cfg.Enabled && !c.closed.Load() }

// =============================================================================
// Metadata
// =============================================================================

// GetMetadata looks up registry metadata for a package name.
func (c *Cache) GetMetadata(ctx context.Context, name string) Result {
	if !c.Enabled() {
		return Result{}
	}
	return c.lookup(ctx, c.cfg.Keyer.MetadataKey(name), kindMetadata, true)
}

// PutMetadata stores registry metadata for a package name and clears any
// absence record for it. Entries larger than MaxEntrySize are rejected and
// PutMetadata returns false; nothing is stored in that case.
func (c *Cache) PutMetadata(ctx context.Context, name string, data []byte) bool {
	if !c.Enabled() {
		return false
	}
	if int64(len(data)) > c.cfg.MaxEntrySize {
		c.rejected.Add(1)
		c.logger.Debug("metadata rejected", "package", name, "size", len(data), "max", c.cfg.MaxEntrySize)
		return false
	}
	key := c.cfg.Keyer.MetadataKey(name)
	c.neg.remove(key)

	expires := c.cfg.now().Add(c.cfg.MetadataTTL)
	payload := clone(data)
	if !c.mem.fits(len(payload)) {
		if err := c.backend.Set(ctx, key, payload, c.cfg.MetadataTTL); err != nil {
			c.backendError("set", key, err)
			return false
		}
		observability.Cache().OnCacheSet(ctx, kindMetadata.String(), len(payload))
		return true
	}
	c.spill(ctx, c.mem.put(key, kindMetadata, payload, expires, false))
	observability.Cache().OnCacheSet(ctx, kindMetadata.String(), len(payload))
	return true
}

// MarkAbsent records that name is confirmed absent upstream. Lookups report
// NegativeHit until NegativeTTL passes or metadata for name is stored.
func (c *Cache) MarkAbsent(ctx context.Context, name string) {
	if !c.Enabled() {
		return
	}
	key := c.cfg.Keyer.MetadataKey(name)
	c.mem.delete(key)
	if err := c.backend.Delete(ctx, key); err != nil {
		c.backendError("delete", key, err)
	}
	c.neg.add(key)
}

// =============================================================================
// Artifacts
// =============================================================================

// GetArtifact looks up artifact bytes by content digest.
func (c *Cache) GetArtifact(ctx context.Context, d digest.Digest) Result {
	if !c.Enabled() {
		return Result{}
	}
	return c.lookup(ctx, c.cfg.Keyer.ArtifactKey(d), kindArtifact, false)
}

// PutArtifact verifies that data hashes to d and stores it. Verification
// happens before anything is written: on mismatch PutArtifact returns an
// [*IntegrityError] and the key stays absent. Concurrent writers of the same
// digest share one write. When the cache is disabled the bytes are still
// verified but not stored.
func (c *Cache) PutArtifact(ctx context.Context, d digest.Digest, data []byte) error {
	if err := Verify(d, data); err != nil {
		c.integrityFailures.Add(1)
		return err
	}
	if !c.Enabled() {
		return nil
	}
	key := c.cfg.Keyer.ArtifactKey(d)
	if c.mem.contains(key) {
		return nil
	}

	_, err, _ := c.writes.Do(key, func() (any, error) {
		payload := clone(data)
		if err := c.backend.Set(ctx, key, payload, 0); err != nil {
			return nil, fmt.Errorf("store artifact %s: %w", d, err)
		}
		c.neg.remove(key)
		observability.Cache().OnCacheSet(ctx, kindArtifact.String(), len(payload))
		if c.mem.fits(len(payload)) {
			c.spill(ctx, c.mem.put(key, kindArtifact, payload, time.Time{}, true))
		}
		return nil, nil
	})
	return err
}

// ViewArtifact calls fn with the artifact bytes while the entry is pinned in
// memory, so it cannot be evicted during fn. The slice is read-only and must
// not be retained after fn returns. Artifacts too large for the memory tier
// are read from the durable tier into a private buffer instead.
func (c *Cache) ViewArtifact(ctx context.Context, d digest.Digest, fn func([]byte) error) (Status, error) {
	if !c.Enabled() {
		return Miss, nil
	}
	key := c.cfg.Keyer.ArtifactKey(d)
	if e, ok := c.mem.acquire(key); ok {
		defer func() { c.spill(ctx, c.mem.release(e)) }()
		c.memoryHits.Add(1)
		observability.Cache().OnCacheHit(ctx, kindArtifact.String(), string(TierMemory))
		return Hit, fn(e.data)
	}
	res := c.GetArtifact(ctx, d)
	if res.Status != Hit {
		return res.Status, nil
	}
	return Hit, fn(res.Data)
}

// =============================================================================
// Shared lookup path
// =============================================================================

func (c *Cache) lookup(ctx context.Context, key string, kind entryKind, negative bool) Result {
	hooks := observability.Cache()

	if data, ok := c.mem.get(key); ok {
		c.memoryHits.Add(1)
		hooks.OnCacheHit(ctx, kind.String(), string(TierMemory))
		return Result{Status: Hit, Data: data, Tier: TierMemory}
	}

	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.backendError("get", key, err)
	}
	if ok && kind == kindArtifact {
		// Durable artifact bytes are re-verified on every promotion.
		if d, perr := digest.Parse(artifactDigest(key)); perr == nil {
			if verr := Verify(d, data); verr != nil {
				c.integrityFailures.Add(1)
				c.logger.Warn("dropping corrupt artifact", "key", key, "err", verr)
				_ = c.backend.Delete(ctx, key)
				ok = false
			}
		}
	}
	if ok {
		c.durableHits.Add(1)
		hooks.OnCacheHit(ctx, kind.String(), string(TierDurable))
		if c.mem.fits(len(data)) {
			var expires time.Time
			if kind == kindMetadata {
				expires = c.cfg.now().Add(c.cfg.MetadataTTL)
			}
			c.spill(ctx, c.mem.put(key, kind, clone(data), expires, true))
		}
		return Result{Status: Hit, Data: data, Tier: TierDurable}
	}

	if negative && c.neg.contains(key) {
		c.negativeHits.Add(1)
		hooks.OnNegativeHit(ctx, kind.String())
		return Result{Status: NegativeHit}
	}

	c.misses.Add(1)
	hooks.OnCacheMiss(ctx, kind.String())
	return Result{Status: Miss}
}

// spill writes evicted, not-yet-durable entries to the durable tier. The
// entries stay readable from memory until their write completes.
func (c *Cache) spill(ctx context.Context, evicted []*memEntry) {
	hooks := observability.Cache()
	for _, e := range evicted {
		c.evictions.Add(1)
		if e.durable {
			hooks.OnEviction(ctx, e.kind.String(), false)
			continue
		}
		ttl := time.Duration(0)
		if !e.expiresAt.IsZero() {
			ttl = e.expiresAt.Sub(c.cfg.now())
			if ttl <= 0 {
				c.mem.spilled(e)
				hooks.OnEviction(ctx, e.kind.String(), false)
				continue
			}
		}
		// Spills outlive the caller's context.
		err := c.backend.Set(context.WithoutCancel(ctx), e.key, e.data, ttl)
		c.mem.spilled(e)
		if err != nil {
			c.spillErrors.Add(1)
			c.backendError("spill", e.key, err)
			hooks.OnEviction(ctx, e.kind.String(), false)
			continue
		}
		c.spills.Add(1)
		hooks.OnEviction(ctx, e.kind.String(), true)
	}
}

func (c *Cache) backendError(op, key string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.backendErrors.Add(1)
	c.logger.Debug("cache backend error", "op", op, "key", key, "err", err)
}

// artifactDigest extracts the digest from a key built by the Keyer. Keys are
// "...blob:<algo>:<hex>".
func artifactDigest(key string) string {
	i := strings.LastIndex(key, "blob:")
	if i < 0 {
		return ""
	}
	return key[i+len("blob:"):]
}

// =============================================================================
// Lifecycle
// =============================================================================

// Flush writes every metadata entry that exists only in memory to the
// durable tier. Entries stay in memory.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}
	var errs []error
	now := c.cfg.now()
	for _, e := range c.mem.dirty() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ttl := time.Duration(0)
		if !e.expiresAt.IsZero() {
			ttl = e.expiresAt.Sub(now)
			if ttl <= 0 {
				continue
			}
		}
		if err := c.backend.Set(ctx, e.key, e.data, ttl); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", e.key, err))
			continue
		}
		c.mem.markDurable(e)
	}
	return errors.Join(errs...)
}

// Clear drops every entry from all tiers and forgets absence records.
func (c *Cache) Clear(ctx context.Context) error {
	c.mem.clear()
	c.neg.clear()
	if cl, ok := c.backend.(Clearer); ok {
		return cl.Clear(ctx)
	}
	return nil
}

// Close flushes pending metadata and closes the durable tier. Lookups after
// Close are misses.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flushErr := c.Flush(ctx)
		c.closed.Store(true)
		err = errors.Join(flushErr, c.backend.Close())
	})
	return err
}
