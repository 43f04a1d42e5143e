package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/quiver/pkg/cache"
	"github.com/matzehuels/quiver/pkg/deps"
	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/httputil"
	"github.com/matzehuels/quiver/pkg/integrations"
	"github.com/matzehuels/quiver/pkg/integrations/index"
)

// Retry defaults for upstream metadata fetches.
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Caching is a [deps.Provider] that answers from a [cache.Cache] when it can
// and otherwise asks the upstream provider, retrying transient failures.
//
// Concurrent requests for the same name share one upstream call; a waiter
// whose context is still live refetches if that call was cancelled. A package
// confirmed missing upstream is recorded in the cache's negative filter so
// repeated lookups fail fast without network traffic.
type Caching struct {
	upstream deps.Provider
	cache    *cache.Cache
	logger   *log.Logger
	group    singleflight.Group

	// Attempts and Delay control the exponential backoff used for retryable
	// upstream errors. Set them before the first call.
	Attempts int
	Delay    time.Duration

	upstreamCalls atomic.Uint64
	cacheAnswers  atomic.Uint64
}

// NewCaching wraps upstream. A nil cache behaves like a disabled one.
func NewCaching(upstream deps.Provider, c *cache.Cache, logger *log.Logger) *Caching {
	if c == nil {
		c = cache.New(cache.Config{}, nil)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Caching{
		upstream: upstream,
		cache:    c,
		logger:   logger,
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
	}
}

// FetchVersions implements [deps.Provider].
//
// Errors carry [qerrors.ErrCodePackageNotFound] for unknown packages and
// [qerrors.ErrCodeProvider] once retries are exhausted or the failure is not
// retryable. Context errors are returned unchanged.
func (p *Caching) FetchVersions(ctx context.Context, name string) ([]deps.Release, error) {
	name = deps.NormalizeName(name)

	res := p.cache.GetMetadata(ctx, name)
	switch res.Status {
	case cache.Hit:
		releases, err := decodeReleases(name, res.Data, p.logger)
		if err == nil {
			p.cacheAnswers.Add(1)
			return releases, nil
		}
		p.logger.Warn("discarding unreadable cached metadata", "package", name, "err", err)
	case cache.NegativeHit:
		p.cacheAnswers.Add(1)
		return nil, qerrors.New(qerrors.ErrCodePackageNotFound, "package %s not found (cached)", name)
	}

	for {
		ch := p.group.DoChan(name, func() (any, error) {
			return p.fetch(ctx, name)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.Err == nil {
				return cloneReleases(r.Val.([]deps.Release)), nil
			}
			// The shared call ran under another caller's context. If that
			// caller gave up, fetch again under ours.
			if isContextErr(r.Err) && ctx.Err() == nil {
				p.logger.Debug("shared fetch cancelled, retrying", "package", name)
				continue
			}
			return nil, r.Err
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p *Caching) fetch(ctx context.Context, name string) ([]deps.Release, error) {
	start := time.Now()
	var releases []deps.Release
	err := httputil.Retry(ctx, p.Attempts, p.Delay, func() error {
		p.upstreamCalls.Add(1)
		var err error
		releases, err = p.upstream.FetchVersions(ctx, name)
		return err
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case isNotFound(err):
		p.cache.MarkAbsent(ctx, name)
		if qerrors.Is(err, qerrors.ErrCodePackageNotFound) {
			return nil, err
		}
		return nil, qerrors.Wrap(qerrors.ErrCodePackageNotFound, err, "package %s", name)
	default:
		return nil, qerrors.Wrap(qerrors.ErrCodeProvider, err, "fetch metadata for %s", name)
	}

	deps.SortReleases(releases)
	if data, err := encodeReleases(name, releases); err != nil {
		p.logger.Warn("metadata not cached", "package", name, "err", err)
	} else if !p.cache.PutMetadata(ctx, name, data) {
		p.logger.Debug("metadata not cached", "package", name, "size", len(data))
	}
	p.logger.Debug("fetched metadata", "package", name, "versions", len(releases), "duration", time.Since(start))
	return releases, nil
}

// Stats reports how many lookups the cache answered and how many upstream
// calls were made, retries included.
func (p *Caching) Stats() (cacheAnswers, upstreamCalls uint64) {
	return p.cacheAnswers.Load(), p.upstreamCalls.Load()
}

func isNotFound(err error) bool {
	return qerrors.Is(err, qerrors.ErrCodePackageNotFound) || errors.Is(err, integrations.ErrNotFound)
}

// encodeReleases uses the index wire format so cached metadata, index files
// and the mirror all share one schema.
func encodeReleases(name string, releases []deps.Release) ([]byte, error) {
	return json.Marshal(index.FromReleases(name, releases, nil))
}

func decodeReleases(name string, data []byte, logger *log.Logger) ([]deps.Release, error) {
	var doc index.PackageDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Name != name {
		return nil, errors.New("cached document names " + doc.Name)
	}
	releases, _ := doc.Releases(logger)
	return releases, nil
}

// cloneReleases gives each singleflight waiter its own slice headers.
func cloneReleases(in []deps.Release) []deps.Release {
	out := make([]deps.Release, len(in))
	for i, r := range in {
		r.Requirements = append([]deps.Requirement(nil), r.Requirements...)
		out[i] = r
	}
	return out
}

var _ deps.Provider = (*Caching)(nil)
