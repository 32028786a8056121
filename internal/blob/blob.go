// Package blob keeps resume documents in named containers on an afero filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrExists   = errors.New("blob already exists")
)

type Store struct {
	fs   afero.Fs
	root string
}

// New roots the store at dir on fs. An empty dir means the filesystem root.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, root: dir}
}

// NewOS is a Store over the local filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

func (s *Store) Download(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(container, name)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", container, name, err)
	}
	return data, nil
}

func (s *Store) Upload(ctx context.Context, container, name string, data []byte, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(container, name)
	if err != nil {
		return err
	}

	if !overwrite {
		exists, err := afero.Exists(s.fs, p)
		if err != nil {
			return fmt.Errorf("stat %s/%s: %w", container, name, err)
		}
		if exists {
			return fmt.Errorf("%s/%s: %w", container, name, ErrExists)
		}
	}

	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create container %s: %w", container, err)
	}

	// Write to a sibling first so readers never observe a half-written document.
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s/%s: %w", container, name, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit %s/%s: %w", container, name, err)
	}
	return nil
}

func (s *Store) path(container, name string) (string, error) {
	container = strings.TrimSpace(container)
	name = strings.TrimSpace(name)
	if container == "" || name == "" {
		return "", errors.New("container and blob name are required")
	}
	if strings.Contains(name, "..") || strings.Contains(container, "..") {
		return "", fmt.Errorf("invalid blob path %s/%s", container, name)
	}
	return path.Join(s.root, container, name), nil
}
