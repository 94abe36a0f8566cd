package keys

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sort"

	"github.com/moby/sys/atomicwriter"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gopkg.in/yaml.v3"
)

var ErrInvalidKey = errors.New("invalid key")

// Pair is a WireGuard key pair in base64 form.
type Pair struct {
	PrivateKey string `yaml:"private_key"`
	PublicKey  string `yaml:"public_key"`
}

// Generator produces fresh key pairs.
type Generator func() (Pair, error)

// Generate creates a key pair with wgtypes.
func Generate() (Pair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return Pair{}, fmt.Errorf("generate private key: %w", err)
	}
	return Pair{PrivateKey: priv.String(), PublicKey: priv.PublicKey().String()}, nil
}

// Validate checks that the private key parses and derives the public key.
func (p Pair) Validate() error {
	priv, err := wgtypes.ParseKey(p.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: private key: %v", ErrInvalidKey, err)
	}
	if priv.PublicKey().String() != p.PublicKey {
		return fmt.Errorf("%w: public key does not match private key", ErrInvalidKey)
	}
	return nil
}

// Ring maps member addresses to their key pairs.
type Ring struct {
	Keys map[string]Pair `yaml:"keys"`

	gen Generator
}

func NewRing(gen Generator) *Ring {
	if gen == nil {
		gen = Generate
	}
	return &Ring{Keys: make(map[string]Pair), gen: gen}
}

// Get returns the pair stored for addr.
func (r *Ring) Get(addr netip.Addr) (Pair, bool) {
	p, ok := r.Keys[addr.String()]
	return p, ok
}

// Ensure returns the pair for addr, generating one when missing.
func (r *Ring) Ensure(addr netip.Addr) (Pair, bool, error) {
	if p, ok := r.Get(addr); ok {
		return p, false, nil
	}
	p, err := r.gen()
	if err != nil {
		return Pair{}, false, err
	}
	r.Keys[addr.String()] = p
	return p, true, nil
}

// Prune drops pairs of addresses not in keep and returns how many were removed.
func (r *Ring) Prune(keep []netip.Addr) int {
	live := make(map[string]struct{}, len(keep))
	for _, a := range keep {
		live[a.String()] = struct{}{}
	}
	n := 0
	for k := range r.Keys {
		if _, ok := live[k]; !ok {
			delete(r.Keys, k)
			n++
		}
	}
	return n
}

// Addresses lists the addresses with a stored pair in ascending order.
func (r *Ring) Addresses() []netip.Addr {
	out := make([]netip.Addr, 0, len(r.Keys))
	for k := range r.Keys {
		if a, err := netip.ParseAddr(k); err == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// LoadRing reads a ring file. A missing file yields an empty ring.
func LoadRing(path string, gen Generator) (*Ring, error) {
	r := NewRing(gen)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read key ring: %w", err)
	}
	if err := yaml.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("parse key ring %s: %w", path, err)
	}
	if r.Keys == nil {
		r.Keys = make(map[string]Pair)
	}
	for addr, p := range r.Keys {
		if _, err := netip.ParseAddr(addr); err != nil {
			return nil, fmt.Errorf("key ring %s: address %q: %w", path, addr, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("key ring %s: %s: %w", path, addr, err)
		}
	}
	return r, nil
}

// Save writes the ring with owner-only permissions.
func (r *Ring) Save(path string) error {
	b, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal key ring: %w", err)
	}
	if err := atomicwriter.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write key ring: %w", err)
	}
	return nil
}
