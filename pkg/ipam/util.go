package ipam

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// hostRange returns the first and last usable host of an IPv4 network,
// excluding the network and broadcast addresses. For a /31 first > last.
func hostRange(p netip.Prefix) (first, last uint32, err error) {
	p = p.Masked()
	if !p.Addr().Is4() {
		return 0, 0, fmt.Errorf("prefix %s is not ipv4", p)
	}
	if p.Bits() > MaxPrefixBits {
		return 0, 0, fmt.Errorf("prefix %s is longer than /%d", p, MaxPrefixBits)
	}
	start := addrToUint32(p.Addr())
	size := uint64(1) << (32 - p.Bits())
	end := uint32(uint64(start) + size - 1)
	return start + 1, end - 1, nil
}
