// Package urlsafe validates outbound destinations so the service cannot be
// used to reach internal networks.
package urlsafe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	"golang.org/x/net/idna"
)

var (
	ErrScheme      = errors.New("urlsafe: only http and https are allowed")
	ErrHost        = errors.New("urlsafe: missing or invalid host")
	ErrPrivateAddr = errors.New("urlsafe: destination resolves to a private or internal address")
)

// Resolver validates a URL before any connection is made.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*url.URL, error)
}

// LookupFunc resolves a host name to addresses.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// DNSResolver is the default Resolver. It resolves the host and rejects the
// URL if any address is internal.
type DNSResolver struct {
	AllowPrivate bool
	Lookup       LookupFunc
}

// New returns a DNSResolver backed by net.DefaultResolver.
func New(allowPrivate bool) *DNSResolver {
	return &DNSResolver{
		AllowPrivate: allowPrivate,
		Lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// Resolve implements Resolver.
func (r *DNSResolver) Resolve(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHost, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return nil, ErrHost
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !r.AllowPrivate && !IsPublic(addr) {
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddr, host)
		}
		return u, nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHost, err)
	}
	if r.AllowPrivate {
		return u, nil
	}
	if strings.EqualFold(ascii, "localhost") || strings.HasSuffix(strings.ToLower(ascii), ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrPrivateAddr, host)
	}

	addrs, err := r.Lookup(ctx, ascii)
	if err != nil {
		return nil, fmt.Errorf("urlsafe: resolve %s: %w", ascii, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no addresses for %s", ErrHost, ascii)
	}
	for _, addr := range addrs {
		if !IsPublic(addr) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrPrivateAddr, ascii, addr)
		}
	}
	return u, nil
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsPublic reports whether addr is routable on the public internet.
func IsPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// DialControl returns a net.Dialer Control hook that refuses connections to
// internal addresses. It catches DNS answers that changed after Resolve.
func DialControl(allowPrivate bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, _ syscall.RawConn) error {
		if allowPrivate {
			return nil
		}
		ap, err := netip.ParseAddrPort(address)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrHost, address)
		}
		if !IsPublic(ap.Addr()) {
			return fmt.Errorf("%w: %s", ErrPrivateAddr, address)
		}
		return nil
	}
}
