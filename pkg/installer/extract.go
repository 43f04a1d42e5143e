package installer

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/resolver"
)

// maxExtractSize bounds the unpacked size of one artifact, counted in bytes
// actually written.
var maxExtractSize int64 = 2 << 30

// Extractor places verified artifact bytes on disk.
type Extractor interface {
	// Extract installs data for n and returns the install location. A failed
	// extraction must leave any previous install of n untouched.
	Extract(ctx context.Context, n *resolver.Node, data []byte) (string, error)

	// Remove deletes the install of name. Removing a missing package is not
	// an error.
	Remove(name string) error
}

// DirExtractor unpacks each package into Root/<name>. Tarballs (plain or
// gzipped, which covers sdists and gems) and zip archives (wheels) are
// unpacked; any other payload is written as a single file. Extraction
// happens in a staging directory that replaces the previous install with
// one rename.
type DirExtractor struct {
	Root string
}

// Extract implements [Extractor].
func (x *DirExtractor) Extract(ctx context.Context, n *resolver.Node, data []byte) (string, error) {
	if err := os.MkdirAll(x.Root, 0o755); err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp(x.Root, "."+n.Name+"-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	switch {
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		err = untgz(ctx, staging, data)
	case isTar(data):
		err = untar(ctx, staging, bytes.NewReader(data))
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		err = unzip(ctx, staging, data)
	default:
		err = os.WriteFile(filepath.Join(staging, fmt.Sprintf("%s-%s", n.Name, n.Version)), data, 0o644)
	}
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeExtract, err, "extract %s", n.Key())
	}

	dest := filepath.Join(x.Root, n.Name)
	if err := os.RemoveAll(dest); err != nil {
		return "", err
	}
	if err := os.Rename(staging, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Remove implements [Extractor].
func (x *DirExtractor) Remove(name string) error {
	return os.RemoveAll(filepath.Join(x.Root, name))
}

// isTar reports whether data starts with a POSIX or GNU tar header.
func isTar(data []byte) bool {
	const magicOffset = 257
	return len(data) >= magicOffset+5 && bytes.Equal(data[magicOffset:magicOffset+5], []byte("ustar"))
}

func untgz(ctx context.Context, dir string, data []byte) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer zr.Close()
	return untar(ctx, dir, zr)
}

func untar(ctx context.Context, dir string, r io.Reader) error {
	budget := maxExtractSize
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := entryPath(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			n, err := writeFile(target, tr, hdr.FileInfo().Mode(), budget)
			if err != nil {
				return err
			}
			budget -= n
		}
		// Links and special files are skipped.
	}
}

func unzip(ctx context.Context, dir string, data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	budget := maxExtractSize
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := entryPath(dir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		// The declared size is only a hint; the budget is charged with what
		// the entry really inflates to.
		if f.UncompressedSize64 > uint64(budget) {
			return errLimit
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		n, err := writeFile(target, rc, f.Mode(), budget)
		rc.Close()
		if err != nil {
			return err
		}
		budget -= n
	}
	return nil
}

// entryPath joins an archive entry name to dir, rejecting names that would
// escape it.
func entryPath(dir, name string) (string, error) {
	clean := filepath.FromSlash(name)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("unsafe path in archive: %q", name)
	}
	return filepath.Join(dir, clean), nil
}

var errLimit = errors.New("archive exceeds size limit")

// writeFile copies r into path and returns the number of bytes written. It
// fails with errLimit once more than limit bytes arrive.
func writeFile(path string, r io.Reader, mode fs.FileMode, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err == nil && n > limit {
		err = errLimit
	}
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
