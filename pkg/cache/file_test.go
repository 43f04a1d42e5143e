package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := b.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v", ok, err)
	}

	if err := b.Set(ctx, "meta:default:flask", []byte("v1"), 0); err != nil {
		t.Fatal(err)
	}
	data, ok, err := b.Get(ctx, "meta:default:flask")
	if err != nil || !ok || string(data) != "v1" {
		t.Fatalf("Get = %q, %v, %v", data, ok, err)
	}

	if err := b.Set(ctx, "meta:default:flask", []byte("v2"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if data, _, _ := b.Get(ctx, "meta:default:flask"); string(data) != "v2" {
		t.Errorf("overwrite: got %q", data)
	}

	if err := b.Delete(ctx, "meta:default:flask"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete(ctx, "meta:default:flask"); err != nil {
		t.Errorf("second Delete = %v", err)
	}
	if _, ok, _ := b.Get(ctx, "meta:default:flask"); ok {
		t.Error("deleted key still present")
	}
}

func TestFileBackendExpiry(t *testing.T) {
	ctx := context.Background()
	b, _ := NewFileBackend(t.TempDir())

	if err := b.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("expired entry returned")
	}
	if _, err := os.Stat(b.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed from disk")
	}
}

func TestFileBackendCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	b, _ := NewFileBackend(t.TempDir())

	path := b.path("k")
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte("{not json"), 0644)

	if _, ok, err := b.Get(ctx, "k"); ok || err != nil {
		t.Errorf("Get(corrupt) = %v, %v", ok, err)
	}
}

func TestFileBackendConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	b, _ := NewFileBackend(t.TempDir())
	payload := []byte("identical artifact payload")
	key := "blob:" + digest.FromBytes(payload).String()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := b.Set(ctx, key, payload, 0); err != nil {
				t.Errorf("Set: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if data, ok, err := b.Get(ctx, key); err != nil || (ok && string(data) != string(payload)) {
				t.Errorf("torn read: %q, %v", data, err)
			}
		}()
	}
	wg.Wait()

	entries, _ := os.ReadDir(filepath.Dir(b.path(key)))
	if len(entries) != 1 {
		t.Errorf("files in shard = %d, want 1 (temp files leaked?)", len(entries))
	}
}

func TestKeyer(t *testing.T) {
	d := digest.FromBytes([]byte("x"))
	k := NewDefaultKeyer("")
	if got := k.MetadataKey("requests"); got != "meta:default:requests" {
		t.Errorf("MetadataKey = %q", got)
	}
	if got := NewDefaultKeyer("pypi.org").MetadataKey("requests"); got != "meta:pypi.org:requests" {
		t.Errorf("scoped MetadataKey = %q", got)
	}
	if got := k.ArtifactKey(d); got != "blob:"+d.String() {
		t.Errorf("ArtifactKey = %q", got)
	}

	s := NewScopedKeyer(nil, "team:1:")
	if got := s.MetadataKey("flask"); got != "team:1:meta:default:flask" {
		t.Errorf("ScopedKeyer.MetadataKey = %q", got)
	}
	if got := artifactDigest(s.ArtifactKey(d)); got != d.String() {
		t.Errorf("artifactDigest = %q, want %q", got, d)
	}
}

func TestVerify(t *testing.T) {
	data := []byte("payload")
	if err := Verify(digest.FromBytes(data), data); err != nil {
		t.Errorf("Verify(sha256) = %v", err)
	}
	if err := Verify(digest.SHA512.FromBytes(data), data); err != nil {
		t.Errorf("Verify(sha512) = %v", err)
	}
	if err := Verify(digest.FromBytes(data), []byte("other")); !IsIntegrityError(err) {
		t.Errorf("Verify(mismatch) = %v", err)
	}
	if Hash(data) != digest.FromBytes(data).Encoded() {
		t.Error("Hash should match the sha256 digest encoding")
	}
}
