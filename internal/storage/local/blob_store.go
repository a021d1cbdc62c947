// Package local archives rendered-page snapshots on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapesRoot rejects object names that resolve outside the snapshot root.
var ErrPathEscapesRoot = errors.New("snapshot path escapes root")

// Config locates the snapshot root.
type Config struct {
	BaseDir string
	// Prefix is joined between BaseDir and every object name.
	Prefix string
}

// BlobStore writes each snapshot to its own file under root.
type BlobStore struct {
	root string
}

// New prepares root (creating it if needed) and verifies it accepts writes.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("snapshot base directory is required")
	}
	root := filepath.Clean(filepath.Join(cfg.BaseDir, cfg.Prefix))
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("prepare snapshot root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot root %s is not a directory", root)
	}
	probe, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("snapshot root not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close() //nolint:errcheck // removed below
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("remove write probe: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Root is the effective snapshot directory.
func (s *BlobStore) Root() string {
	return s.root
}

// PutObject streams r into root/name through a temp file and a rename, so
// readers never see a partially written snapshot. It returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, name string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("object name is required")
	}
	target := filepath.Clean(filepath.Join(s.root, name))
	if !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, ErrPathEscapesRoot)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close() //nolint:errcheck // copy error wins
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("publish snapshot: %w", err)
	}
	return "file://" + target, nil
}
