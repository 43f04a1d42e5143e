package resolver

import (
	"context"
	"sync"

	"github.com/matzehuels/quiver/pkg/deps"
)

// DefaultWorkers is the size of the metadata prefetch pool.
const DefaultWorkers = 8

type fetchResult struct {
	name     string
	releases []deps.Release
	err      error
}

// prefetcher fetches metadata on a bounded worker pool. Workers only call
// the provider and report back; every map here is owned by the coordinator,
// which applies results in the order it asks for them, so fetch timing never
// influences a decision.
type prefetcher struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider deps.Provider

	jobs    chan string
	results chan fetchResult
	wg      sync.WaitGroup

	requested map[string]bool
	done      map[string]fetchResult
}

func newPrefetcher(ctx context.Context, provider deps.Provider, workers int) *prefetcher {
	ctx, cancel := context.WithCancel(ctx)
	p := &prefetcher{
		ctx:       ctx,
		cancel:    cancel,
		provider:  provider,
		jobs:      make(chan string, workers*2),
		results:   make(chan fetchResult, workers*2),
		requested: make(map[string]bool),
		done:      make(map[string]fetchResult),
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *prefetcher) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case name := <-p.jobs:
			releases, err := p.provider.FetchVersions(p.ctx, name)
			select {
			case p.results <- fetchResult{name: name, releases: releases, err: err}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// request schedules a fetch for name unless one was already scheduled.
func (p *prefetcher) request(name string) {
	if p.requested[name] {
		return
	}
	p.requested[name] = true
	select {
	case p.jobs <- name:
	default:
		// Queue full: hand off without blocking the coordinator.
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			select {
			case p.jobs <- name:
			case <-p.ctx.Done():
			}
		}()
	}
}

// wait blocks until the metadata for name is available.
func (p *prefetcher) wait(name string) ([]deps.Release, error) {
	p.request(name)
	for {
		if r, ok := p.done[name]; ok {
			return r.releases, r.err
		}
		select {
		case r := <-p.results:
			p.done[r.name] = r
		case <-p.ctx.Done():
			return nil, p.ctx.Err()
		}
	}
}

// fetched returns how many packages have metadata available.
func (p *prefetcher) fetched() int { return len(p.done) }

// stop cancels in-flight fetches and waits for the workers to exit.
func (p *prefetcher) stop() {
	p.cancel()
	p.wg.Wait()
}
