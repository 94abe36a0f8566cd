package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the vpnctl commands.
// Env:
//
//	VPNCTL_STATE, VPNCTL_STORE, VPNCTL_STORE_DIR, VPNCTL_SQLITE_PATH,
//	VPNCTL_KEYS, VPNCTL_LOG_LEVEL, VPNCTL_IFACE, VPNCTL_LISTEN_PORT
type Config struct {
	StatePath  string
	Store      string
	StoreDir   string
	SQLitePath string
	KeysPath   string
	LogLevel   string
	Interface  string
	ListenPort int
}

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Load reads .env from the working directory when present, then the
// process environment.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	port, err := strconv.Atoi(getenv("VPNCTL_LISTEN_PORT", "51820"))
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("VPNCTL_LISTEN_PORT: invalid port %q", os.Getenv("VPNCTL_LISTEN_PORT"))
	}
	cfg := Config{
		StatePath:  getenv("VPNCTL_STATE", "vpn.json"),
		Store:      getenv("VPNCTL_STORE", StoreFile),
		StoreDir:   getenv("VPNCTL_STORE_DIR", "networks"),
		SQLitePath: getenv("VPNCTL_SQLITE_PATH", "vpnctl.db"),
		KeysPath:   getenv("VPNCTL_KEYS", "keys.yaml"),
		LogLevel:   getenv("VPNCTL_LOG_LEVEL", "info"),
		Interface:  getenv("VPNCTL_IFACE", "wg0"),
		ListenPort: port,
	}
	switch cfg.Store {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return Config{}, fmt.Errorf("VPNCTL_STORE: unsupported store %q", cfg.Store)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
