// Package cache implements the layered cache behind metadata lookups and
// artifact downloads.
//
// A [Cache] composes three parts behind one API:
//
//   - a bounded in-memory LRU (entry count and optional byte budget) whose
//     entries can be pinned by readers
//   - a durable [Backend]: badger (badgerstore), redis (redisstore), mongo
//     (mongostore), plain files ([FileBackend]) or nothing ([NullBackend])
//   - a negative filter of package names confirmed absent upstream
//
// Lookups go memory, durable, negative filter, then Miss:
//
//	res := c.GetMetadata(ctx, "requests")
//	switch res.Status {
//	case cache.Hit:         // decode res.Data
//	case cache.NegativeHit: // known absent, skip the network
//	case cache.Miss:        // fetch upstream, then c.PutMetadata
//	}
//
// Artifacts are content addressed. [Cache.PutArtifact] verifies the bytes
// against their digest before anything is stored.
package cache
