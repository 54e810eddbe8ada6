// Package atomicfile writes files so that readers observe either the old
// content or the complete new content, never a partial write.
package atomicfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Result describes a completed write.
type Result struct {
	Path   string
	Size   int64
	SHA256 string
}

// Write streams the output of fill into a temporary file next to path, syncs it,
// renames it over path and syncs the directory. The temporary file is removed
// on any failure before the rename.
func Write(path string, perm os.FileMode, fill func(w io.Writer) error) (Result, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	hash := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hash)}
	if err := fill(counter); err != nil {
		return Result{}, err
	}
	if err := tmp.Chmod(perm); err != nil {
		return Result{}, fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return Result{}, fmt.Errorf("rename %s: %w", tmpName, err)
	}
	committed = true
	if err := syncDir(dir); err != nil {
		return Result{}, err
	}

	return Result{
		Path:   path,
		Size:   counter.n,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// syncDir flushes the directory entry so the rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// WriteBytes is Write for an in-memory payload.
func WriteBytes(path string, data []byte, perm os.FileMode) (Result, error) {
	return Write(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
