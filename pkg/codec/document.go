package codec

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"vpnctl/pkg/ipam"
	"vpnctl/pkg/model"
	"vpnctl/pkg/vpn"
)

// document is the JSON shape of a VPN. VPNPoolNetwork on a router always
// repeats Network.
type document struct {
	Network string          `json:"network"`
	Peers   []documentEntry `json:"peers"`
}

type documentEntry struct {
	Type           string `json:"type"`
	Address        string `json:"address"`
	Endpoint       string `json:"endpoint,omitempty"`
	VPNPoolNetwork string `json:"vpn_pool_network,omitempty"`
}

// MarshalDocument encodes v as a JSON document.
func MarshalDocument(v *vpn.VPN) ([]byte, error) {
	network := v.Network().String()
	doc := document{
		Network: network,
		Peers:   make([]documentEntry, 0, v.Len()),
	}
	for _, p := range v.Peers() {
		entry := documentEntry{
			Type:    p.Kind.String(),
			Address: p.Address.String(),
		}
		if p.IsRouter() {
			entry.Endpoint = p.Endpoint
			entry.VPNPoolNetwork = network
		}
		doc.Peers = append(doc.Peers, entry)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return b, nil
}

// UnmarshalDocument rebuilds a VPN from a JSON document, replaying every
// peer with its recorded address in document order.
func UnmarshalDocument(data []byte, opts ...vpn.Option) (*vpn.VPN, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc.Network == "" {
		return nil, fmt.Errorf("%w: missing network", ErrMalformedDocument)
	}
	network, err := ipam.ParseNetwork(doc.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	v, err := vpn.New(network, "", opts...)
	if err != nil {
		return nil, err
	}
	for i, entry := range doc.Peers {
		addr, endpoint, err := parseDocumentEntry(entry, network)
		if err != nil {
			return nil, fmt.Errorf("%w: peers[%d]: %w", ErrMalformedDocument, i, err)
		}
		if _, err := v.AddPeer(addr, endpoint); err != nil {
			return nil, fmt.Errorf("peers[%d]: %w", i, err)
		}
	}
	return v, nil
}

func parseDocumentEntry(entry documentEntry, network netip.Prefix) (netip.Addr, string, error) {
	kind, err := model.ParseKind(entry.Type)
	if err != nil {
		return netip.Addr{}, "", err
	}
	if entry.Address == "" {
		return netip.Addr{}, "", fmt.Errorf("missing address")
	}
	addr, err := netip.ParseAddr(entry.Address)
	if err != nil {
		return netip.Addr{}, "", err
	}
	switch kind {
	case model.KindRouter:
		if entry.Endpoint == "" {
			return netip.Addr{}, "", fmt.Errorf("router %s has no endpoint", addr)
		}
		if err := model.ValidateEndpoint(entry.Endpoint); err != nil {
			return netip.Addr{}, "", err
		}
		if entry.VPNPoolNetwork != "" && entry.VPNPoolNetwork != network.String() {
			return netip.Addr{}, "", fmt.Errorf("router %s vpn_pool_network %s does not match network %s",
				addr, entry.VPNPoolNetwork, network)
		}
		return addr, entry.Endpoint, nil
	default:
		if entry.Endpoint != "" {
			return netip.Addr{}, "", fmt.Errorf("peer %s carries an endpoint", addr)
		}
		return addr, "", nil
	}
}
