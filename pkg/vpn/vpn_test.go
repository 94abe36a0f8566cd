package vpn

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"vpnctl/pkg/ipam"
	"vpnctl/pkg/model"
)

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

// requireLockstep checks that the pool holds exactly the member addresses.
func requireLockstep(t *testing.T, v *VPN) {
	t.Helper()
	members := make([]netip.Addr, 0, v.Len())
	for _, p := range v.Peers() {
		members = append(members, p.Address)
	}
	assert.ElementsMatch(t, members, v.pool.Allocated())
	assert.Equal(t, v.pool.Capacity()-v.Len(), v.Remaining())
}

func TestNew(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 254, v.Remaining())
	assert.Empty(t, v.Endpoints())

	_, err = Parse("192.168.0.1/24", "")
	assert.ErrorIs(t, err, ipam.ErrInvalidNetwork)
}

func TestNewBootstrapsRouter(t *testing.T) {
	v, err := Parse("10.0.0.0/28", "1.1.1.1")
	require.NoError(t, err)
	require.Equal(t, 1, v.Len())

	r := v.Peers()[0]
	assert.True(t, r.IsRouter())
	assert.Equal(t, addr("10.0.0.1"), r.Address)
	assert.Equal(t, []string{"1.1.1.1"}, v.Endpoints())
	assert.Equal(t, 13, v.Remaining())
	requireLockstep(t, v)
}

func TestAddRemoveScenario(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)

	p, err := v.AddPeer(addr("192.168.0.2"), "")
	require.NoError(t, err)
	assert.Equal(t, model.KindPeer, p.Kind)
	assert.Equal(t, addr("192.168.0.2"), p.Address)

	_, err = v.AddPeer(addr("192.168.0.2"), "")
	assert.ErrorIs(t, err, ipam.ErrDuplicateAddress)
	assert.Equal(t, 1, v.Len())

	r, err := v.AddPeer(addr("192.168.0.3"), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, r.IsRouter())
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("192.168.0.0/24")}, v.Routes(r))
	assert.Equal(t, []string{"10.0.0.1"}, v.Endpoints())

	removed, ok := v.RemovePeer(netip.Addr{})
	require.True(t, ok)
	assert.Equal(t, r, removed)

	peers := v.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, model.NewPeer(addr("192.168.0.2")), peers[0])
	requireLockstep(t, v)
}

func TestBulkAllocationExhaustsPool(t *testing.T) {
	v, err := Parse("10.0.0.0/28", "1.1.1.1")
	require.NoError(t, err)

	for i, want := range []string{"10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"} {
		p, err := v.AddPeer(netip.Addr{}, "")
		require.NoError(t, err, "add %d", i)
		assert.Equal(t, addr(want), p.Address)
	}
	assert.Equal(t, 9, v.Remaining())

	for v.Remaining() > 0 {
		_, err := v.AddPeer(netip.Addr{}, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 14, v.Len())

	_, err = v.AddPeer(netip.Addr{}, "")
	assert.ErrorIs(t, err, ipam.ErrPoolExhausted)
	assert.Equal(t, 14, v.Len())
	requireLockstep(t, v)
}

func TestAddPeerOutOfRange(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)

	_, err = v.AddPeer(addr("10.1.1.1"), "")
	assert.ErrorIs(t, err, ipam.ErrOutOfRange)
	assert.Equal(t, 0, v.Len())
	requireLockstep(t, v)
}

func TestAddPeerInvalidEndpoint(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)

	_, err = v.AddPeer(netip.Addr{}, "not valid")
	assert.ErrorIs(t, err, model.ErrInvalidEndpoint)
	assert.Equal(t, 254, v.Remaining())
}

func TestRemovePeerByAddress(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)
	for _, s := range []string{"192.168.0.2", "192.168.0.3", "192.168.0.4"} {
		_, err := v.AddPeer(addr(s), "")
		require.NoError(t, err)
	}

	removed, ok := v.RemovePeer(addr("192.168.0.3"))
	require.True(t, ok)
	assert.Equal(t, addr("192.168.0.3"), removed.Address)

	var got []netip.Addr
	for _, p := range v.Peers() {
		got = append(got, p.Address)
	}
	assert.Equal(t, []netip.Addr{addr("192.168.0.2"), addr("192.168.0.4")}, got)
	requireLockstep(t, v)

	// the freed address is handed out again
	p, err := v.AddPeer(netip.Addr{}, "")
	require.NoError(t, err)
	assert.Equal(t, addr("192.168.0.1"), p.Address)
	p, err = v.AddPeer(netip.Addr{}, "")
	require.NoError(t, err)
	assert.Equal(t, addr("192.168.0.3"), p.Address)
}

func TestRemovePeerMissIsNoop(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)

	_, ok := v.RemovePeer(netip.Addr{})
	assert.False(t, ok)

	_, err = v.AddPeer(addr("192.168.0.2"), "")
	require.NoError(t, err)
	_, ok = v.RemovePeer(addr("192.168.0.9"))
	assert.False(t, ok)
	assert.Equal(t, 1, v.Len())
	requireLockstep(t, v)
}

func TestRemovePeerStrict(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "")
	require.NoError(t, err)

	_, err = v.RemovePeerStrict(netip.Addr{})
	assert.ErrorIs(t, err, ErrPeerNotFound)

	_, err = v.AddPeer(addr("192.168.0.2"), "")
	require.NoError(t, err)
	_, err = v.RemovePeerStrict(addr("192.168.0.9"))
	assert.ErrorIs(t, err, ErrPeerNotFound)

	p, err := v.RemovePeerStrict(addr("192.168.0.2"))
	require.NoError(t, err)
	assert.Equal(t, addr("192.168.0.2"), p.Address)
	assert.Equal(t, 0, v.Len())
	requireLockstep(t, v)
}

func TestPeersReturnsCopy(t *testing.T) {
	v, err := Parse("192.168.0.0/24", "1.1.1.1")
	require.NoError(t, err)

	peers := v.Peers()
	peers[0].Endpoint = "changed"
	assert.Equal(t, []string{"1.1.1.1"}, v.Endpoints())
}

func TestLookupAndRouters(t *testing.T) {
	v, err := Parse("10.0.0.0/24", "1.1.1.1")
	require.NoError(t, err)
	_, err = v.AddPeer(netip.Addr{}, "")
	require.NoError(t, err)
	_, err = v.AddPeer(netip.Addr{}, "12.23.34.45:53")
	require.NoError(t, err)

	p, ok := v.Peer(addr("10.0.0.2"))
	require.True(t, ok)
	assert.False(t, p.IsRouter())
	assert.Empty(t, v.Routes(p))

	_, ok = v.Peer(addr("10.0.0.200"))
	assert.False(t, ok)

	routers := v.Routers()
	require.Len(t, routers, 2)
	assert.Equal(t, []string{"1.1.1.1", "12.23.34.45:53"}, v.Endpoints())
}

func TestString(t *testing.T) {
	v, err := Parse("10.0.0.0/28", "1.1.1.1")
	require.NoError(t, err)
	_, err = v.AddPeer(netip.Addr{}, "")
	require.NoError(t, err)

	assert.Equal(t,
		"VPN(network=10.0.0.0/28, endpoints=[1.1.1.1], left_in_pool=12, peers=[Router: 10.0.0.1, Peer: 10.0.0.2])",
		v.String())
}

func TestMembershipChangesAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	v, err := Parse("10.0.0.0/28", "", WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = v.AddPeer(netip.Addr{}, "1.1.1.1")
	require.NoError(t, err)
	_, ok := v.RemovePeer(netip.Addr{})
	require.True(t, ok)

	assert.Equal(t, 1, logs.FilterMessage("peer added").Len())
	assert.Equal(t, 1, logs.FilterMessage("peer removed").Len())
}
