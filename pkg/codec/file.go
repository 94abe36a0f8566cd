package codec

import (
	"fmt"
	"io"
	"os"

	"github.com/moby/sys/atomicwriter"
	"go.uber.org/multierr"

	"vpnctl/pkg/vpn"
)

// Write encodes v in format f to w.
func Write(w io.Writer, f Format, v *vpn.VPN) error {
	b, err := Marshal(f, v)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", f, err)
	}
	return nil
}

// Read decodes a VPN in format f from r.
func Read(r io.Reader, f Format, opts ...vpn.Option) (*vpn.VPN, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f, err)
	}
	return Unmarshal(f, b, opts...)
}

// WriteFile replaces path with the encoded VPN. The file is written to a
// temporary sibling and renamed on close, so readers see either the old
// or the new document.
func WriteFile(path string, f Format, v *vpn.VPN) (err error) {
	w, err := atomicwriter.New(path, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("commit %s: %w", path, cerr))
		}
	}()
	return Write(w, f, v)
}

// ReadFile decodes the VPN stored at path.
func ReadFile(path string, f Format, opts ...vpn.Option) (v *vpn.VPN, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, fh.Close())
	}()
	return Read(fh, f, opts...)
}
