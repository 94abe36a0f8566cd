// Package codec translates a VPN to and from its two external forms: a
// JSON document and a sectioned INI-style config. Decoding replays every
// member through vpn.AddPeer with its recorded address, so a decoded VPN
// obeys the same allocation rules as one built by hand.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"vpnctl/pkg/vpn"
)

var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrMalformedConfig   = errors.New("malformed config")
	ErrUnknownFormat     = errors.New("unknown format")
)

type Format string

const (
	FormatDocument Format = "json"
	FormatConfig   Format = "ini"
)

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "document":
		return FormatDocument, nil
	case "ini", "conf", "config":
		return FormatConfig, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath picks a format from a file extension, defaulting to the
// JSON document.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".conf", ".cfg":
		return FormatConfig
	default:
		return FormatDocument
	}
}

func Marshal(f Format, v *vpn.VPN) ([]byte, error) {
	switch f {
	case FormatDocument:
		return MarshalDocument(v)
	case FormatConfig:
		return MarshalConfig(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func Unmarshal(f Format, data []byte, opts ...vpn.Option) (*vpn.VPN, error) {
	switch f {
	case FormatDocument:
		return UnmarshalDocument(data, opts...)
	case FormatConfig:
		return UnmarshalConfig(data, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}
