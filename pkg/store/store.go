package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"vpnctl/pkg/config"
	"vpnctl/pkg/vpn"
)

var (
	ErrNotFound    = errors.New("network not found")
	ErrInvalidName = errors.New("invalid network name")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Store keeps named VPN snapshots. Every Save replaces the whole snapshot.
type Store interface {
	Save(ctx context.Context, name string, v *vpn.VPN) error
	Load(ctx context.Context, name string, opts ...vpn.Option) (*vpn.VPN, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// New opens the store selected by cfg.Store.
func New(cfg config.Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Store {
	case config.StoreFile:
		return NewFileStore(cfg.StoreDir, log)
	case config.StoreSQLite:
		return OpenSQLite(context.Background(), cfg.SQLitePath, log)
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store)
	}
}

func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
