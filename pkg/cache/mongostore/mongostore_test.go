package mongostore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("QUIVER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("QUIVER_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := New(ctx, Config{
		URI:        uri,
		Database:   "quiver_test",
		Collection: "cache_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.coll.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "blob:sha256:abc", []byte("bytes"), 0))
	require.NoError(t, s.Set(ctx, "blob:sha256:abc", []byte("bytes2"), 0))
	data, ok, err := s.Get(ctx, "blob:sha256:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bytes2", string(data))

	require.NoError(t, s.Delete(ctx, "blob:sha256:abc"))
	_, ok, _ = s.Get(ctx, "blob:sha256:abc")
	assert.False(t, ok)
}

func TestStoreExpiryCheckedOnRead(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Set(ctx, "meta:default:flask", []byte("v"), time.Minute))
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, ok, err := s.Get(ctx, "meta:default:flask")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, s.Clear(ctx))
	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
}
