// Package storage implements the filesystem root the engine writes
// notes and assets into.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is the engine-owned output directory. All writes are atomic
// (tmp file → fsync → rename) so a partially-written file is never
// observable at its final path.
type Root struct {
	root string // absolute path
}

// NewRoot creates the directory if needed and returns a Root for it.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Root{root: abs}, nil
}

// Dir returns the absolute root path.
func (r *Root) Dir() string { return r.root }

// safePath resolves a relative path against the root and rejects any
// result that escapes it (directory traversal).
func (r *Root) safePath(rel string) (string, error) {
	if rel == "" {
		return r.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(r.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, r.root+string(os.PathSeparator)) && abs != r.root {
		return "", fmt.Errorf("storage: path escapes sync root: %s", rel)
	}
	return abs, nil
}

// Write atomically writes content at rel (slash-separated), creating
// parent directories as needed.
func (r *Root) Write(rel string, content []byte) error {
	abs, err := r.safePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".minote-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Read returns the raw bytes of a file under the root.
func (r *Root) Read(rel string) ([]byte, error) {
	abs, err := r.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether a regular file exists at rel.
func (r *Root) Exists(rel string) bool {
	abs, err := r.safePath(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}
