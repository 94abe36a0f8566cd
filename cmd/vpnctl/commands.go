package main

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vpnctl/pkg/codec"
	"vpnctl/pkg/ipam"
	"vpnctl/pkg/keys"
	"vpnctl/pkg/model"
	"vpnctl/pkg/version"
	"vpnctl/pkg/vpn"
	"vpnctl/pkg/wireguard"
)

func (a *app) initCmd() *cobra.Command {
	var (
		network  string
		endpoint string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new VPN state file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.cfg.StatePath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.cfg.StatePath)
			}
			prefix, err := ipam.ParseNetwork(network)
			if err != nil {
				return err
			}
			v, err := vpn.New(prefix, endpoint, vpn.WithLogger(a.log))
			if err != nil {
				return err
			}
			if err := a.saveState(v); err != nil {
				return err
			}
			a.log.Info("vpn initialized", zap.Stringer("network", prefix), zap.String("state", a.cfg.StatePath))
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "IPv4 network CIDR of the address pool")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "bootstrap a router reachable at this endpoint")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing state file")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var (
		address  string
		endpoint string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a peer, or a router when --endpoint is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrFlag(address)
			if err != nil {
				return err
			}
			v, err := a.loadState()
			if err != nil {
				return err
			}
			p, err := v.AddPeer(addr, endpoint)
			if err != nil {
				return err
			}
			if err := a.saveState(v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%d left in pool)\n", p, v.Remaining())
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address to assign (default: lowest free host)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "public endpoint; makes the member a router")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	var (
		address string
		strict  bool
	)
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member by address, or the most recently added one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrFlag(address)
			if err != nil {
				return err
			}
			v, err := a.loadState()
			if err != nil {
				return err
			}
			var (
				removed model.Peer
				ok      bool
			)
			if strict {
				if removed, err = v.RemovePeerStrict(addr); err != nil {
					return err
				}
				ok = true
			} else {
				removed, ok = v.RemovePeer(addr)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to remove")
				return nil
			}
			if err := a.saveState(v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%d left in pool)\n", removed, v.Remaining())
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address of the member to remove")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when no member holds the address")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the VPN membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.loadState()
			if err != nil {
				return err
			}
			if format == "" || format == "text" {
				return printSummary(cmd.OutOrStdout(), v)
			}
			f, err := codec.ParseFormat(format)
			if err != nil {
				return err
			}
			if err := codec.Write(cmd.OutOrStdout(), f, v); err != nil {
				return err
			}
			if f == codec.FormatDocument {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|ini")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the VPN to a JSON document or INI config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, out)
			if err != nil {
				return err
			}
			v, err := a.loadState()
			if err != nil {
				return err
			}
			if err := codec.WriteFile(out, f, v); err != nil {
				return err
			}
			a.log.Info("vpn exported", zap.String("path", out), zap.String("format", string(f)))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination file")
	cmd.Flags().StringVar(&format, "format", "", "json|ini (default: from file extension)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var (
		in     string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the VPN state with a JSON document or INI config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, in)
			if err != nil {
				return err
			}
			v, err := codec.ReadFile(in, f, vpn.WithLogger(a.log))
			if err != nil {
				return err
			}
			if err := a.saveState(v); err != nil {
				return err
			}
			a.log.Info("vpn imported", zap.String("path", in), zap.Int("peers", v.Len()))
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "source file")
	cmd.Flags().StringVar(&format, "format", "", "json|ini (default: from file extension)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	var (
		address string
		outDir  string
		opts    = wireguard.Options{Interface: a.cfg.Interface, ListenPort: a.cfg.ListenPort}
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a wg-quick config for one member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			self, err := parseAddrFlag(address)
			if err != nil {
				return err
			}
			v, err := a.loadState()
			if err != nil {
				return err
			}
			if _, ok := v.Peer(self); !ok {
				return fmt.Errorf("%w: %s", wireguard.ErrUnknownMember, self)
			}
			ring, err := keys.LoadRing(a.cfg.KeysPath, nil)
			if err != nil {
				return err
			}
			members := make([]netip.Addr, 0, v.Len())
			for _, p := range v.Peers() {
				members = append(members, p.Address)
				if _, created, err := ring.Ensure(p.Address); err != nil {
					return err
				} else if created {
					a.log.Info("generated key pair", zap.Stringer("address", p.Address))
				}
			}
			if n := ring.Prune(members); n > 0 {
				a.log.Info("pruned stale key pairs", zap.Int("count", n))
			}
			if err := ring.Save(a.cfg.KeysPath); err != nil {
				return err
			}
			conf, err := wireguard.RenderConfig(v, self, ring, opts)
			if err != nil {
				return err
			}
			if outDir == "" {
				fmt.Fprint(cmd.OutOrStdout(), conf)
				return nil
			}
			path, err := wireguard.WriteConfig(outDir, opts.Interface, conf)
			if err != nil {
				return err
			}
			a.log.Info("wrote wireguard config", zap.String("path", path))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "member address to render the config for")
	cmd.Flags().StringVar(&opts.Interface, "iface", opts.Interface, "wireguard interface name")
	cmd.Flags().IntVar(&opts.ListenPort, "listen-port", opts.ListenPort, "default wireguard port")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write <iface>.conf into this directory instead of stdout")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (a *app) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save NAME",
		Short: "Store the current VPN state under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.loadState()
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Save(cmd.Context(), args[0], v)
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load NAME",
		Short: "Replace the VPN state with a stored network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			v, err := s.Load(cmd.Context(), args[0], vpn.WithLogger(a.log))
			if err != nil {
				return err
			}
			if err := a.saveState(v); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			names, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Delete(cmd.Context(), args[0])
		},
	}
}

// demoCmd builds a small VPN in memory, round-trips it through the JSON
// document and prints the INI config of the copy.
func (a *app) demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "demo",
		Short:  "Print the config of a sample VPN",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := buildDemo(a.log)
			if err != nil {
				return err
			}
			doc, err := codec.MarshalDocument(v)
			if err != nil {
				return err
			}
			clone, err := codec.UnmarshalDocument(doc)
			if err != nil {
				return err
			}
			return codec.Write(cmd.OutOrStdout(), codec.FormatConfig, clone)
		},
	}
}

func buildDemo(log *zap.Logger) (*vpn.VPN, error) {
	v, err := vpn.Parse("10.0.0.0/28", "1.1.1.1", vpn.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if _, err := v.AddPeer(netip.Addr{}, "12.23.34.45"); err != nil {
		return nil, err
	}
	for i := 0; i < 4; i++ {
		if _, err := v.AddPeer(netip.Addr{}, ""); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// formatFor resolves an explicit --format, falling back to the file extension.
func formatFor(flag, path string) (codec.Format, error) {
	if flag != "" {
		return codec.ParseFormat(flag)
	}
	return codec.FormatFromPath(path), nil
}
