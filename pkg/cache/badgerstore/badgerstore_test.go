package badgerstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/quiver/pkg/cache"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "meta:default:flask", []byte(`{"versions":[]}`), 0))
	data, ok, err := s.Get(ctx, "meta:default:flask")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"versions":[]}`, string(data))

	require.NoError(t, s.Delete(ctx, "meta:default:flask"))
	_, ok, _ = s.Get(ctx, "meta:default:flask")
	assert.False(t, ok)
}

func TestStoreCompressesLargeValues(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	large := bytes.Repeat([]byte("requires_dist: urllib3<3,>=1.21.1\n"), 200)
	require.NoError(t, s.Set(ctx, "k", large, 0))

	var stored []byte
	require.NoError(t, s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	}))
	assert.Equal(t, encZstd, stored[0])
	assert.Less(t, len(stored), len(large))

	data, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, large, data)
}

func TestStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	// badger TTLs have one-second resolution.
	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Second))
	time.Sleep(2100 * time.Millisecond)
	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreAsCacheBackend(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	c := cache.New(cache.Config{Enabled: true, MemoryEntries: 1}, s)

	a, b := []byte("artifact a"), []byte("artifact b")
	require.NoError(t, c.PutArtifact(ctx, digest.FromBytes(a), a))
	require.NoError(t, c.PutArtifact(ctx, digest.FromBytes(b), b))

	res := c.GetArtifact(ctx, digest.FromBytes(a))
	assert.Equal(t, cache.Hit, res.Status)
	assert.Equal(t, cache.TierDurable, res.Tier)
	assert.Equal(t, a, res.Data)

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, cache.Miss, c.GetArtifact(ctx, digest.FromBytes(b)).Status)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
