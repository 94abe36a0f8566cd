package topology

import (
	"net/netip"

	"vpnctl/pkg/model"
	"vpnctl/pkg/vpn"
)

// DefaultKeepalive is used by plain peers so routers can reach them behind NAT.
const DefaultKeepalive = 25

// PeerPlan is one tunnel a member should configure.
type PeerPlan struct {
	Peer       model.Peer
	AllowedIPs []netip.Prefix
	Keepalive  int
}

// BuildPeerPlan derives the tunnels for the member holding self, in member
// order. Routers connect to every other member by its own address. Plain
// peers only connect to routers: the first one carries the routes of the
// VPN, later ones are reached by their own address so AllowedIPs never
// overlap. ok is false when self is not a member.
func BuildPeerPlan(v *vpn.VPN, self netip.Addr) (plan []PeerPlan, ok bool) {
	member, ok := v.Peer(self)
	if !ok {
		return nil, false
	}
	routed := false
	for _, p := range v.Peers() {
		if p.Address == self {
			continue
		}
		if !member.IsRouter() && !p.IsRouter() {
			continue
		}
		entry := PeerPlan{
			Peer:       p,
			AllowedIPs: []netip.Prefix{netip.PrefixFrom(p.Address, 32)},
		}
		if !member.IsRouter() {
			entry.Keepalive = DefaultKeepalive
			if !routed {
				entry.AllowedIPs = v.Routes(p)
				routed = true
			}
		}
		plan = append(plan, entry)
	}
	return plan, true
}
