package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vpnctl/pkg/codec"
	"vpnctl/pkg/vpn"
)

// MemoryStore keeps encoded documents in memory, intended for tests and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, name string, v *vpn.VPN) error {
	if err := validateName(name); err != nil {
		return err
	}
	b, err := codec.MarshalDocument(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = b
	return nil
}

func (m *MemoryStore) Load(_ context.Context, name string, opts ...vpn.Option) (*vpn.VPN, error) {
	m.mu.RLock()
	b, ok := m.docs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return codec.UnmarshalDocument(b, opts...)
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for name := range m.docs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.docs, name)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
