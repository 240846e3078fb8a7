package urlsafe

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLookup(addrs ...string) LookupFunc {
	return func(ctx context.Context, host string) ([]netip.Addr, error) {
		var out []netip.Addr
		for _, a := range addrs {
			out = append(out, netip.MustParseAddr(a))
		}
		return out, nil
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("public host passes", func(t *testing.T) {
		r := &DNSResolver{Lookup: staticLookup("104.21.2.3")}
		u, err := r.Resolve(ctx, "https://api.jikan.moe/v4/anime/1")
		require.NoError(t, err)
		assert.Equal(t, "api.jikan.moe", u.Host)
	})

	t.Run("private answer rejected", func(t *testing.T) {
		r := &DNSResolver{Lookup: staticLookup("104.21.2.3", "10.0.0.5")}
		_, err := r.Resolve(ctx, "https://internal.example.com/")
		assert.ErrorIs(t, err, ErrPrivateAddr)
	})

	t.Run("literal addresses", func(t *testing.T) {
		r := &DNSResolver{Lookup: staticLookup()}
		for _, raw := range []string{
			"http://127.0.0.1:8080/",
			"http://169.254.169.254/latest/meta-data",
			"http://[::1]/",
			"http://192.168.1.10/",
			"http://100.64.0.1/",
		} {
			_, err := r.Resolve(ctx, raw)
			assert.ErrorIs(t, err, ErrPrivateAddr, raw)
		}
	})

	t.Run("localhost name rejected without lookup", func(t *testing.T) {
		r := &DNSResolver{Lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			t.Fatal("lookup should not run")
			return nil, nil
		}}
		_, err := r.Resolve(ctx, "http://localhost:9000/")
		assert.ErrorIs(t, err, ErrPrivateAddr)
	})

	t.Run("scheme rejected", func(t *testing.T) {
		r := New(false)
		_, err := r.Resolve(ctx, "file:///etc/passwd")
		assert.ErrorIs(t, err, ErrScheme)
		_, err = r.Resolve(ctx, "gopher://example.com/")
		assert.ErrorIs(t, err, ErrScheme)
	})

	t.Run("allow private for local development", func(t *testing.T) {
		r := New(true)
		_, err := r.Resolve(ctx, "http://127.0.0.1:4000/anime")
		assert.NoError(t, err)
	})

	t.Run("unicode hosts are converted before lookup", func(t *testing.T) {
		var seen string
		r := &DNSResolver{Lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			seen = host
			return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
		}}
		_, err := r.Resolve(ctx, "https://アニメ.example/")
		require.NoError(t, err)
		assert.Equal(t, "xn--gckxcpg.example", seen)
	})
}

func TestDialControl(t *testing.T) {
	control := DialControl(false)
	assert.NoError(t, control("tcp", "93.184.216.34:443", nil))
	assert.ErrorIs(t, control("tcp", "127.0.0.1:443", nil), ErrPrivateAddr)
	assert.ErrorIs(t, control("tcp6", "[fd00::1]:443", nil), ErrPrivateAddr)

	assert.NoError(t, DialControl(true)("tcp", "127.0.0.1:443", nil))
}
