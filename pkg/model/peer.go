package model

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind discriminates the membership record variants.
type Kind uint8

const (
	KindPeer Kind = iota
	KindRouter
)

var (
	ErrUnknownKind     = errors.New("unknown peer type")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

func (k Kind) String() string {
	switch k {
	case KindPeer:
		return "peer"
	case KindRouter:
		return "router"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps the serialized type name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "peer":
		return KindPeer, nil
	case "router":
		return KindRouter, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Peer is a member of a VPN. Routers additionally carry the endpoint the
// far side of a tunnel dials; plain peers leave Endpoint empty.
type Peer struct {
	Kind     Kind
	Address  netip.Addr
	Endpoint string
}

func NewPeer(addr netip.Addr) Peer {
	return Peer{Kind: KindPeer, Address: addr}
}

func NewRouter(addr netip.Addr, endpoint string) Peer {
	return Peer{Kind: KindRouter, Address: addr, Endpoint: endpoint}
}

func (p Peer) IsRouter() bool { return p.Kind == KindRouter }

// Routes lists the networks reachable through p. A router advertises the
// whole pool network it belongs to; the caller passes that network in.
func (p Peer) Routes(network netip.Prefix) []netip.Prefix {
	if !p.IsRouter() {
		return nil
	}
	return []netip.Prefix{network}
}

func (p Peer) String() string {
	if p.IsRouter() {
		return "Router: " + p.Address.String()
	}
	return "Peer: " + p.Address.String()
}

// ValidateEndpoint accepts a host or IP, optionally followed by a port.
// Endpoints must be printable UTF-8 so both serialized forms carry them
// unchanged.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !utf8.ValidString(endpoint) {
		return fmt.Errorf("%w: %q is not valid utf-8", ErrInvalidEndpoint, endpoint)
	}
	if strings.IndexFunc(endpoint, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidEndpoint, endpoint)
	}
	// a leading triple quote opens a multi-line value in the config form
	if strings.HasPrefix(endpoint, `"""`) {
		return fmt.Errorf("%w: %q starts with a triple quote", ErrInvalidEndpoint, endpoint)
	}
	host := endpoint
	if h, _, err := net.SplitHostPort(endpoint); err == nil {
		host = h
	}
	if host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, endpoint)
	}
	return nil
}
