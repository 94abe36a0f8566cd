package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vpnctl/pkg/codec"
	"vpnctl/pkg/config"
	"vpnctl/pkg/logging"
	"vpnctl/pkg/store"
	"vpnctl/pkg/version"
	"vpnctl/pkg/vpn"
)

// app carries the resolved settings shared by every subcommand.
type app struct {
	cfg config.Config
	log *zap.Logger
}

func newRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg, log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "vpnctl",
		Short:         "Manage address assignment and membership of a private overlay network",
		Version:       version.Build,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.StatePath, "state", cfg.StatePath, "VPN state file (.json document or .ini config)")
	root.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.cfg.KeysPath, "keys", cfg.KeysPath, "key ring file")

	root.AddCommand(
		a.initCmd(),
		a.addCmd(),
		a.removeCmd(),
		a.showCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.renderCmd(),
		a.saveCmd(),
		a.loadCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.demoCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) stateFormat() codec.Format {
	return codec.FormatFromPath(a.cfg.StatePath)
}

func (a *app) loadState() (*vpn.VPN, error) {
	v, err := codec.ReadFile(a.cfg.StatePath, a.stateFormat(), vpn.WithLogger(a.log))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no vpn state at %s (run vpnctl init first)", a.cfg.StatePath)
	}
	return v, err
}

func (a *app) saveState(v *vpn.VPN) error {
	if err := codec.WriteFile(a.cfg.StatePath, a.stateFormat(), v); err != nil {
		return err
	}
	a.log.Debug("state written", zap.String("path", a.cfg.StatePath), zap.Int("peers", v.Len()))
	return nil
}

func (a *app) openStore() (store.Store, error) {
	return store.New(a.cfg, a.log)
}

// parseAddrFlag treats an empty flag as "no address".
func parseAddrFlag(s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}
