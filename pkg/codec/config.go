package codec

import (
	"bytes"
	"fmt"
	"net/netip"

	"gopkg.in/ini.v1"

	"vpnctl/pkg/ipam"
	"vpnctl/pkg/model"
	"vpnctl/pkg/vpn"
)

const (
	networkSection = "VPN"
	peerSectionFmt = "Peer%d"

	keyNetwork  = "network"
	keyAddress  = "address"
	keyEndpoint = "endpoint"
)

// loadOptions keep values byte for byte and surface repeated sections and
// keys instead of merging them.
var loadOptions = ini.LoadOptions{
	PreserveSurroundedQuote:    true,
	IgnoreContinuation:         true,
	AllowNonUniqueSections:     true,
	AllowShadows:               true,
	AllowDuplicateShadowValues: true,
}

// MarshalConfig renders v as sectioned text: a VPN section holding the
// network, then one PeerN section per member in member order.
func MarshalConfig(v *vpn.VPN) ([]byte, error) {
	cfg := ini.Empty()
	sec, err := cfg.NewSection(networkSection)
	if err != nil {
		return nil, fmt.Errorf("config section %s: %w", networkSection, err)
	}
	if _, err := sec.NewKey(keyNetwork, v.Network().String()); err != nil {
		return nil, fmt.Errorf("config key %s: %w", keyNetwork, err)
	}
	for i, p := range v.Peers() {
		name := fmt.Sprintf(peerSectionFmt, i+1)
		sec, err := cfg.NewSection(name)
		if err != nil {
			return nil, fmt.Errorf("config section %s: %w", name, err)
		}
		if _, err := sec.NewKey(keyAddress, p.Address.String()); err != nil {
			return nil, fmt.Errorf("config %s key %s: %w", name, keyAddress, err)
		}
		if p.IsRouter() {
			if _, err := sec.NewKey(keyEndpoint, p.Endpoint); err != nil {
				return nil, fmt.Errorf("config %s key %s: %w", name, keyEndpoint, err)
			}
		}
	}
	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalConfig rebuilds a VPN from sectioned text. Every section after
// the VPN section is a member; an endpoint key makes it a router. A section
// name or a key repeated within a section is malformed.
func UnmarshalConfig(data []byte, opts ...vpn.Option) (*vpn.VPN, error) {
	cfg, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	if err := checkUnique(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	sec, err := cfg.GetSection(networkSection)
	if err != nil {
		return nil, fmt.Errorf("%w: missing [%s] section", ErrMalformedConfig, networkSection)
	}
	if !sec.HasKey(keyNetwork) {
		return nil, fmt.Errorf("%w: [%s] has no %s key", ErrMalformedConfig, networkSection, keyNetwork)
	}
	network, err := ipam.ParseNetwork(sec.Key(keyNetwork).String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}
	v, err := vpn.New(network, "", opts...)
	if err != nil {
		return nil, err
	}
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == networkSection {
			continue
		}
		addr, endpoint, err := parseConfigSection(sec)
		if err != nil {
			return nil, fmt.Errorf("%w: [%s]: %w", ErrMalformedConfig, name, err)
		}
		if _, err := v.AddPeer(addr, endpoint); err != nil {
			return nil, fmt.Errorf("[%s]: %w", name, err)
		}
	}
	return v, nil
}

func parseConfigSection(sec *ini.Section) (netip.Addr, string, error) {
	if !sec.HasKey(keyAddress) {
		return netip.Addr{}, "", fmt.Errorf("missing %s key", keyAddress)
	}
	addr, err := netip.ParseAddr(sec.Key(keyAddress).String())
	if err != nil {
		return netip.Addr{}, "", err
	}
	if !sec.HasKey(keyEndpoint) {
		return addr, "", nil
	}
	endpoint := sec.Key(keyEndpoint).String()
	if endpoint == "" {
		return netip.Addr{}, "", fmt.Errorf("router %s has an empty %s", addr, keyEndpoint)
	}
	if err := model.ValidateEndpoint(endpoint); err != nil {
		return netip.Addr{}, "", err
	}
	return addr, endpoint, nil
}

func checkUnique(cfg *ini.File) error {
	seen := make(map[string]struct{})
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if _, ok := seen[name]; ok {
			return fmt.Errorf("section [%s] appears more than once", name)
		}
		seen[name] = struct{}{}
		for _, key := range sec.Keys() {
			if len(key.ValueWithShadows()) > 1 {
				return fmt.Errorf("[%s] key %s appears more than once", name, key.Name())
			}
		}
	}
	return nil
}
