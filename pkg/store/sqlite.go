package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"vpnctl/pkg/codec"
	"vpnctl/pkg/vpn"
)

const opTimeout = 3 * time.Second

const schema = `CREATE TABLE IF NOT EXISTS networks(
	name TEXT PRIMARY KEY,
	network TEXT NOT NULL,
	document TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps each network as one JSON document row.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite init schema: %w", err)
	}
	log.Debug("sqlite store opened", zap.String("path", path))
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, name string, v *vpn.VPN) error {
	if err := validateName(name); err != nil {
		return err
	}
	doc, err := codec.MarshalDocument(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO networks(name, network, document, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET network=excluded.network, document=excluded.document, updated_at=excluded.updated_at`,
		name, v.Network().String(), string(doc), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	s.log.Info("network saved", zap.String("name", name), zap.Int("peers", v.Len()))
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, name string, opts ...vpn.Option) (*vpn.VPN, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM networks WHERE name=?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return codec.UnmarshalDocument([]byte(doc), opts...)
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM networks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list networks: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE name=?`, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.log.Info("network deleted", zap.String("name", name))
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
