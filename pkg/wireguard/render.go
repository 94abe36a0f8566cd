package wireguard

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moby/sys/atomicwriter"

	"vpnctl/pkg/keys"
	"vpnctl/pkg/model"
	"vpnctl/pkg/topology"
	"vpnctl/pkg/vpn"
)

const (
	DefaultInterface  = "wg0"
	DefaultListenPort = 51820
)

var (
	ErrUnknownMember = errors.New("address is not a vpn member")
	ErrMissingKey    = errors.New("no key pair for member")
)

// Options tune the rendered interface.
type Options struct {
	Interface  string
	ListenPort int
}

func (o Options) withDefaults() Options {
	if o.Interface == "" {
		o.Interface = DefaultInterface
	}
	if o.ListenPort <= 0 {
		o.ListenPort = DefaultListenPort
	}
	return o
}

// RenderConfig produces a wg-quick compatible config for the member holding
// self, with one [Peer] block per entry of its topology plan.
func RenderConfig(v *vpn.VPN, self netip.Addr, ring *keys.Ring, opts Options) (string, error) {
	opts = opts.withDefaults()
	member, ok := v.Peer(self)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMember, self)
	}
	plan, _ := topology.BuildPeerPlan(v, self)
	own, ok := ring.Get(self)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, self)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", opts.Interface)
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "Address = %s\n", netip.PrefixFrom(self, v.Network().Bits()))
	if member.IsRouter() {
		fmt.Fprintf(&b, "ListenPort = %d\n", listenPort(member.Endpoint, opts.ListenPort))
	}
	fmt.Fprintf(&b, "PrivateKey = %s\n", own.PrivateKey)
	b.WriteString("\n")

	for _, entry := range plan {
		p := entry.Peer
		pair, ok := ring.Get(p.Address)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingKey, p.Address)
		}
		b.WriteString("[Peer]\n")
		fmt.Fprintf(&b, "# %s\n", p)
		fmt.Fprintf(&b, "PublicKey = %s\n", pair.PublicKey)
		if p.IsRouter() {
			fmt.Fprintf(&b, "Endpoint = %s\n", dialEndpoint(p, opts.ListenPort))
		}
		fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(prefixStrings(entry.AllowedIPs), ", "))
		if entry.Keepalive > 0 {
			fmt.Fprintf(&b, "PersistentKeepalive = %d\n", entry.Keepalive)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// WriteConfig writes a rendered config to <dir>/<iface>.conf and returns the path.
func WriteConfig(dir, iface, conf string) (string, error) {
	if iface == "" {
		iface = DefaultInterface
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir output: %w", err)
	}
	path := filepath.Join(dir, iface+".conf")
	if err := atomicwriter.WriteFile(path, []byte(conf), 0o600); err != nil {
		return "", fmt.Errorf("write wireguard config: %w", err)
	}
	return path, nil
}

// dialEndpoint appends the default port when the router endpoint has none.
func dialEndpoint(p model.Peer, port int) string {
	if _, _, err := net.SplitHostPort(p.Endpoint); err == nil {
		return p.Endpoint
	}
	return net.JoinHostPort(p.Endpoint, strconv.Itoa(port))
}

// listenPort uses the port of the router's own endpoint when it names one.
func listenPort(endpoint string, def int) int {
	if _, port, err := net.SplitHostPort(endpoint); err == nil {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func prefixStrings(ps []netip.Prefix) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.String())
	}
	return out
}
