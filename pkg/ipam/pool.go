package ipam

import (
	"errors"
	"fmt"
	"net/netip"
)

// MaxPrefixBits is the longest accepted prefix. A /31 yields an empty pool
// since both of its addresses are network and broadcast; a /32 would have a
// negative capacity.
const MaxPrefixBits = 31

var (
	ErrInvalidNetwork   = errors.New("invalid network")
	ErrDuplicateAddress = errors.New("address already allocated")
	ErrPoolExhausted    = errors.New("no unallocated addresses left in pool")
	ErrNotAllocated     = errors.New("address not allocated")
	ErrOutOfRange       = errors.New("address outside pool host range")
)

// Pool hands out host addresses of a single IPv4 network. Allocation order
// is kept so Allocated reports addresses the way they were handed out.
// A Pool is not safe for concurrent use.
type Pool struct {
	network   netip.Prefix
	first     uint32
	last      uint32
	allocated []netip.Addr
	index     map[netip.Addr]struct{}
}

// ParseNetwork parses a strict IPv4 CIDR: host bits must be zero.
func ParseNetwork(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalidNetwork, err)
	}
	if err := validateNetwork(p); err != nil {
		return netip.Prefix{}, err
	}
	return p, nil
}

func validateNetwork(p netip.Prefix) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: network cidr is required", ErrInvalidNetwork)
	}
	if !p.Addr().Is4() {
		return fmt.Errorf("%w: only ipv4 networks are supported, got %s", ErrInvalidNetwork, p)
	}
	if p.Masked() != p {
		return fmt.Errorf("%w: %s has host bits set", ErrInvalidNetwork, p)
	}
	if p.Bits() > MaxPrefixBits {
		return fmt.Errorf("%w: /%d is longer than /%d", ErrInvalidNetwork, p.Bits(), MaxPrefixBits)
	}
	return nil
}

// New creates an empty pool over network.
func New(network netip.Prefix) (*Pool, error) {
	if err := validateNetwork(network); err != nil {
		return nil, err
	}
	first, last, err := hostRange(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetwork, err)
	}
	return &Pool{
		network: network,
		first:   first,
		last:    last,
		index:   make(map[netip.Addr]struct{}),
	}, nil
}

func (p *Pool) Network() netip.Prefix { return p.network }

// Capacity is the number of usable host addresses: 2^(32-bits) - 2.
func (p *Pool) Capacity() int {
	if p.first > p.last {
		return 0
	}
	return int(p.last-p.first) + 1
}

func (p *Pool) Remaining() int {
	return p.Capacity() - len(p.allocated)
}

// Allocated returns a copy of the held addresses in allocation order.
func (p *Pool) Allocated() []netip.Addr {
	out := make([]netip.Addr, len(p.allocated))
	copy(out, p.allocated)
	return out
}

// Contains reports whether addr is currently allocated.
func (p *Pool) Contains(addr netip.Addr) bool {
	_, ok := p.index[addr]
	return ok
}

// InRange reports whether addr is a usable host of the pool network.
func (p *Pool) InRange(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	v := addrToUint32(addr)
	return v >= p.first && v <= p.last
}

// Allocate reserves an address. A zero requested address picks the lowest
// free host; otherwise the requested address is reserved as is.
func (p *Pool) Allocate(requested netip.Addr) (netip.Addr, error) {
	if requested.IsValid() {
		if !p.InRange(requested) {
			return netip.Addr{}, fmt.Errorf("%w: %s not in %s", ErrOutOfRange, requested, p.network)
		}
		if p.Contains(requested) {
			return netip.Addr{}, fmt.Errorf("%w: %s", ErrDuplicateAddress, requested)
		}
		p.insert(requested)
		return requested, nil
	}

	if p.Remaining() <= 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrPoolExhausted, p.network)
	}
	for v := p.first; v <= p.last; v++ {
		addr := uint32ToAddr(v)
		if !p.Contains(addr) {
			p.insert(addr)
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %s", ErrPoolExhausted, p.network)
}

// Release returns addr to the pool.
func (p *Pool) Release(addr netip.Addr) error {
	if !p.Contains(addr) {
		return fmt.Errorf("%w: %s", ErrNotAllocated, addr)
	}
	delete(p.index, addr)
	for i, a := range p.allocated {
		if a == addr {
			p.allocated = append(p.allocated[:i], p.allocated[i+1:]...)
			break
		}
	}
	return nil
}

func (p *Pool) String() string {
	return fmt.Sprintf("Pool(network=%s, allocated=%d, left=%d)", p.network, len(p.allocated), p.Remaining())
}

func (p *Pool) insert(addr netip.Addr) {
	p.allocated = append(p.allocated, addr)
	p.index[addr] = struct{}{}
}
