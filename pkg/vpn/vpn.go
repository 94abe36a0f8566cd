package vpn

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"vpnctl/pkg/ipam"
	"vpnctl/pkg/model"
)

var ErrPeerNotFound = errors.New("peer not found")

// VPN owns an address pool and the ordered list of members holding its
// addresses. Every member address is allocated in the pool and every
// allocated address belongs to exactly one member.
//
// A VPN is not safe for concurrent use; callers sharing one must serialize
// access themselves.
type VPN struct {
	pool  *ipam.Pool
	peers []model.Peer
	log   *zap.Logger
}

type Option func(*VPN)

// WithLogger sets the logger used for membership changes.
func WithLogger(l *zap.Logger) Option {
	return func(v *VPN) {
		if l != nil {
			v.log = l
		}
	}
}

// New creates a VPN over network. A non-empty endpoint bootstraps the VPN
// with a single router reachable at that endpoint.
func New(network netip.Prefix, endpoint string, opts ...Option) (*VPN, error) {
	pool, err := ipam.New(network)
	if err != nil {
		return nil, err
	}
	v := &VPN{pool: pool, log: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	if endpoint != "" {
		if _, err := v.AddPeer(netip.Addr{}, endpoint); err != nil {
			return nil, fmt.Errorf("bootstrap router: %w", err)
		}
	}
	return v, nil
}

// Parse is New with the network given as a CIDR string.
func Parse(cidr, endpoint string, opts ...Option) (*VPN, error) {
	network, err := ipam.ParseNetwork(cidr)
	if err != nil {
		return nil, err
	}
	return New(network, endpoint, opts...)
}

func (v *VPN) Network() netip.Prefix { return v.pool.Network() }

func (v *VPN) Remaining() int { return v.pool.Remaining() }

func (v *VPN) Len() int { return len(v.peers) }

// Peers returns a copy of the members in insertion order.
func (v *VPN) Peers() []model.Peer {
	out := make([]model.Peer, len(v.peers))
	copy(out, v.peers)
	return out
}

// Peer looks up the member holding addr.
func (v *VPN) Peer(addr netip.Addr) (model.Peer, bool) {
	if i := v.indexOf(addr); i >= 0 {
		return v.peers[i], true
	}
	return model.Peer{}, false
}

// Routers returns the router members in insertion order.
func (v *VPN) Routers() []model.Peer {
	var out []model.Peer
	for _, p := range v.peers {
		if p.IsRouter() {
			out = append(out, p)
		}
	}
	return out
}

// Endpoints lists the endpoint of every router in member order.
func (v *VPN) Endpoints() []string {
	out := []string{}
	for _, p := range v.peers {
		if p.IsRouter() && p.Endpoint != "" {
			out = append(out, p.Endpoint)
		}
	}
	return out
}

// Routes is the set of networks advertised through p in this VPN.
func (v *VPN) Routes(p model.Peer) []netip.Prefix {
	return p.Routes(v.pool.Network())
}

// AddPeer allocates an address and appends a new member. A zero address
// lets the pool choose; a non-empty endpoint makes the member a router.
// Pool errors are returned unchanged.
func (v *VPN) AddPeer(address netip.Addr, endpoint string) (model.Peer, error) {
	if endpoint != "" {
		if err := model.ValidateEndpoint(endpoint); err != nil {
			return model.Peer{}, err
		}
	}
	addr, err := v.pool.Allocate(address)
	if err != nil {
		return model.Peer{}, err
	}
	var p model.Peer
	if endpoint != "" {
		p = model.NewRouter(addr, endpoint)
	} else {
		p = model.NewPeer(addr)
	}
	v.peers = append(v.peers, p)
	v.log.Debug("peer added",
		zap.String("kind", p.Kind.String()),
		zap.Stringer("address", p.Address),
		zap.String("endpoint", p.Endpoint),
		zap.Int("left_in_pool", v.pool.Remaining()))
	return p, nil
}

// RemovePeer removes the member holding address, or the most recently
// added member when address is zero. Removing from an empty VPN or an
// address no member holds is a no-op reported by ok == false.
func (v *VPN) RemovePeer(address netip.Addr) (removed model.Peer, ok bool) {
	i := len(v.peers) - 1
	if address.IsValid() {
		i = v.indexOf(address)
	}
	if i < 0 {
		return model.Peer{}, false
	}
	return v.removeAt(i), true
}

// RemovePeerStrict is RemovePeer that fails with ErrPeerNotFound instead of
// silently ignoring a miss.
func (v *VPN) RemovePeerStrict(address netip.Addr) (model.Peer, error) {
	p, ok := v.RemovePeer(address)
	if !ok {
		if address.IsValid() {
			return model.Peer{}, fmt.Errorf("%w: %s", ErrPeerNotFound, address)
		}
		return model.Peer{}, fmt.Errorf("%w: vpn has no peers", ErrPeerNotFound)
	}
	return p, nil
}

func (v *VPN) removeAt(i int) model.Peer {
	p := v.peers[i]
	v.peers = append(v.peers[:i], v.peers[i+1:]...)
	if err := v.pool.Release(p.Address); err != nil {
		// only reachable if the pool and member list drifted apart
		v.log.Error("release address", zap.Stringer("address", p.Address), zap.Error(err))
	}
	v.log.Debug("peer removed",
		zap.String("kind", p.Kind.String()),
		zap.Stringer("address", p.Address),
		zap.Int("left_in_pool", v.pool.Remaining()))
	return p
}

func (v *VPN) indexOf(addr netip.Addr) int {
	for i, p := range v.peers {
		if p.Address == addr {
			return i
		}
	}
	return -1
}

func (v *VPN) String() string {
	peers := make([]string, 0, len(v.peers))
	for _, p := range v.peers {
		peers = append(peers, p.String())
	}
	return fmt.Sprintf("VPN(network=%s, endpoints=[%s], left_in_pool=%d, peers=[%s])",
		v.pool.Network(), strings.Join(v.Endpoints(), ", "), v.pool.Remaining(), strings.Join(peers, ", "))
}
