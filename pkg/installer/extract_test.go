package installer

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/resolver"
	"github.com/matzehuels/quiver/pkg/semver"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(plainTar(t, files)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func plainTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func wheel(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func node(name, version string) *resolver.Node {
	return &resolver.Node{Name: name, Version: semver.MustParse(version)}
}

func TestDirExtractorFormats(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
		file string
		want string
	}{
		{
			name: "tarball",
			data: func(t *testing.T) []byte {
				return tarball(t, map[string]string{"pkg-1.0/setup.py": "setup()", "pkg-1.0/pkg/__init__.py": "x = 1"})
			},
			file: "pkg-1.0/pkg/__init__.py",
			want: "x = 1",
		},
		{
			name: "gem",
			data: func(t *testing.T) []byte {
				return plainTar(t, map[string]string{"metadata.gz": "meta", "data.tar.gz": "data"})
			},
			file: "data.tar.gz",
			want: "data",
		},
		{
			name: "wheel",
			data: func(t *testing.T) []byte {
				return wheel(t, map[string]string{"pkg/__init__.py": "y = 2", "pkg-1.0.dist-info/METADATA": "Name: pkg"})
			},
			file: "pkg/__init__.py",
			want: "y = 2",
		},
		{
			name: "raw",
			data: func(*testing.T) []byte { return []byte("opaque") },
			file: "pkg-1.0.0",
			want: "opaque",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := &DirExtractor{Root: t.TempDir()}
			path, err := x.Extract(context.Background(), node("pkg", "1.0.0"), tt.data(t))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if path != filepath.Join(x.Root, "pkg") {
				t.Errorf("path = %s", path)
			}
			got, err := os.ReadFile(filepath.Join(path, filepath.FromSlash(tt.file)))
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDirExtractorRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	x := &DirExtractor{Root: root}

	good := tarball(t, map[string]string{"ok.txt": "v1"})
	if _, err := x.Extract(context.Background(), node("evil", "1.0.0"), good); err != nil {
		t.Fatal(err)
	}

	bad := tarball(t, map[string]string{"../../escape.txt": "gotcha"})
	_, err := x.Extract(context.Background(), node("evil", "2.0.0"), bad)
	if !qerrors.Is(err, qerrors.ErrCodeExtract) {
		t.Fatalf("Extract = %v, want EXTRACT_FAILED", err)
	}
	if _, err := os.Stat(filepath.Join(root, "..", "escape.txt")); !os.IsNotExist(err) {
		t.Error("archive escaped the install root")
	}
	// The previous install is untouched.
	got, err := os.ReadFile(filepath.Join(root, "evil", "ok.txt"))
	if err != nil || string(got) != "v1" {
		t.Errorf("previous install = %q, %v", got, err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Errorf("staging dirs left behind: %v", entries)
	}
}

func TestDirExtractorReplaces(t *testing.T) {
	x := &DirExtractor{Root: t.TempDir()}
	ctx := context.Background()
	if _, err := x.Extract(ctx, node("p", "1.0.0"), tarball(t, map[string]string{"old.txt": "1"})); err != nil {
		t.Fatal(err)
	}
	path, err := x.Extract(ctx, node("p", "2.0.0"), tarball(t, map[string]string{"new.txt": "2"}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(path, "old.txt")); !os.IsNotExist(err) {
		t.Error("old file survived reinstall")
	}
	if err := x.Remove("p"); err != nil {
		t.Fatal(err)
	}
	if err := x.Remove("p"); err != nil {
		t.Errorf("second Remove = %v", err)
	}
}

func TestDirExtractorSizeLimit(t *testing.T) {
	old := maxExtractSize
	maxExtractSize = 8
	t.Cleanup(func() { maxExtractSize = old })

	// Each entry fits on its own; together they do not.
	files := map[string]string{"a.txt": "aaaaaa", "b.txt": "bbbbbb"}
	tests := []struct {
		name string
		data []byte
	}{
		{"tarball", tarball(t, files)},
		{"gem", plainTar(t, files)},
		{"wheel", wheel(t, files)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			x := &DirExtractor{Root: root}
			_, err := x.Extract(context.Background(), node("big", "1.0.0"), tt.data)
			if !qerrors.Is(err, qerrors.ErrCodeExtract) || !errors.Is(err, errLimit) {
				t.Fatalf("Extract = %v, want size limit error", err)
			}
			if _, err := os.Stat(filepath.Join(root, "big")); !os.IsNotExist(err) {
				t.Error("oversized archive was installed")
			}
		})
	}

	x := &DirExtractor{Root: t.TempDir()}
	if _, err := x.Extract(context.Background(), node("fits", "1.0.0"), wheel(t, map[string]string{"a": "1234", "b": "5678"})); err != nil {
		t.Errorf("archive at the limit: %v", err)
	}
}

func TestWriteFileCountsBytes(t *testing.T) {
	dir := t.TempDir()

	n, err := writeFile(filepath.Join(dir, "ok"), strings.NewReader("hello"), 0o644, 5)
	if err != nil || n != 5 {
		t.Fatalf("writeFile = %d, %v; want 5, nil", n, err)
	}

	// A reader that yields more than its entry declared is cut off at the
	// remaining budget.
	_, err = writeFile(filepath.Join(dir, "big"), strings.NewReader(strings.Repeat("x", 100)), 0o644, 10)
	if !errors.Is(err, errLimit) {
		t.Errorf("writeFile over limit = %v, want errLimit", err)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reg, err := OpenRegistry(dir)
	if err != nil {
		t.Fatal(err)
	}
	reg.Put(Record{Name: "Zope.Interface", Version: "6.0.0"})
	reg.Put(Record{Name: "attrs", Version: "23.1.0"})
	if err := reg.Save(); err != nil {
		t.Fatal(err)
	}

	again, err := OpenRegistry(dir)
	if err != nil {
		t.Fatal(err)
	}
	list := again.List()
	if len(list) != 2 || list[0].Name != "attrs" || list[1].Name != "zope-interface" {
		t.Errorf("List() = %+v", list)
	}

	if err := os.WriteFile(filepath.Join(dir, RegistryFile), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenRegistry(dir); !qerrors.Is(err, qerrors.ErrCodeParse) {
		t.Errorf("OpenRegistry(corrupt) = %v, want PARSE_ERROR", err)
	}
}
