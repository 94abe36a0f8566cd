package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"vpnctl/pkg/codec"
	"vpnctl/pkg/vpn"
)

const fileExt = ".json"

// FileStore keeps one JSON document per network in a directory.
type FileStore struct {
	dir string
	log *zap.Logger
}

func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir store dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{dir: dir, log: log}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func (s *FileStore) Save(_ context.Context, name string, v *vpn.VPN) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := codec.WriteFile(s.path(name), codec.FormatDocument, v); err != nil {
		return err
	}
	s.log.Info("network saved", zap.String("name", name), zap.String("path", s.path(name)), zap.Int("peers", v.Len()))
	return nil
}

func (s *FileStore) Load(_ context.Context, name string, opts ...vpn.Option) (*vpn.VPN, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	v, err := codec.ReadFile(s.path(name), codec.FormatDocument, opts...)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, err
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		if validateName(name) == nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	s.log.Info("network deleted", zap.String("name", name))
	return nil
}

func (s *FileStore) Close() error { return nil }
