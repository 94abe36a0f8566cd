package store

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpnctl/pkg/config"
	"vpnctl/pkg/vpn"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFileStore(filepath.Join(dir, "files"), nil)
	require.NoError(t, err)
	sq, err := OpenSQLite(context.Background(), filepath.Join(dir, "db", "vpnctl.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
		"sqlite": sq,
	}
}

func officeVPN(t *testing.T) *vpn.VPN {
	t.Helper()
	v, err := vpn.Parse("10.0.0.0/28", "1.1.1.1")
	require.NoError(t, err)
	_, err = v.AddPeer(netip.Addr{}, "12.23.34.45")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = v.AddPeer(netip.Addr{}, "")
		require.NoError(t, err)
	}
	return v
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for kind, s := range openStores(t) {
		t.Run(kind, func(t *testing.T) {
			want := officeVPN(t)

			_, err := s.Load(ctx, "office")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Save(ctx, "office", want))
			got, err := s.Load(ctx, "office")
			require.NoError(t, err)
			assert.Equal(t, want.Network(), got.Network())
			assert.Equal(t, want.Peers(), got.Peers())

			// saving again replaces the snapshot
			want.RemovePeer(netip.Addr{})
			require.NoError(t, s.Save(ctx, "office", want))
			got, err = s.Load(ctx, "office")
			require.NoError(t, err)
			assert.Equal(t, want.Peers(), got.Peers())

			other, err := vpn.Parse("10.1.0.0/24", "")
			require.NoError(t, err)
			require.NoError(t, s.Save(ctx, "lab", other))

			names, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"lab", "office"}, names)

			require.NoError(t, s.Delete(ctx, "lab"))
			assert.ErrorIs(t, s.Delete(ctx, "lab"), ErrNotFound)
			names, err = s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"office"}, names)

			assert.ErrorIs(t, s.Save(ctx, "../escape", want), ErrInvalidName)
			assert.ErrorIs(t, s.Save(ctx, "", want), ErrInvalidName)
		})
	}
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vpnctl.db")

	s, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	want := officeVPN(t)
	require.NoError(t, s.Save(ctx, "office", want))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "office")
	require.NoError(t, err)
	assert.Equal(t, want.Peers(), got.Peers())
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		Store:      config.StoreFile,
		StoreDir:   filepath.Join(dir, "networks"),
		SQLitePath: filepath.Join(dir, "vpnctl.db"),
	}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	cfg.Store = config.StoreSQLite
	s, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	cfg.Store = config.StoreMemory
	s, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Store = "consul"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
