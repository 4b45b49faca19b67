// Package security decides which source hosts the fetcher may talk to.
// A Policy screens URLs before a request is issued and revalidates the
// resolved addresses at dial time, so a DNS answer cannot change between
// the check and the connect.
package security

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

const (
	dialTimeout   = 7 * time.Second
	lookupTimeout = 2 * time.Second
)

// address ranges that never belong to a public image host: loopback,
// RFC 1918, link-local, CGNAT, multicast and their IPv6 counterparts
var reservedRanges = func() []netip.Prefix {
	cidrs := []string{
		"127.0.0.0/8", "::1/128",
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
		"169.254.0.0/16", "100.64.0.0/10",
		"0.0.0.0/8", "224.0.0.0/4", "240.0.0.0/4",
		"::/128", "fe80::/10", "fc00::/7", "ff00::/8",
	}
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		prefixes = append(prefixes, netip.MustParsePrefix(c))
	}
	return prefixes
}()

// IsReservedAddr reports whether addr falls in a loopback, private,
// link-local or otherwise reserved range.
func IsReservedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range reservedRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowedScheme reports whether u uses http or https. Every other scheme
// is rejected.
func AllowedScheme(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Policy is the validator hook the fetcher consults. With protectPrivate
// set it rejects source hosts that are, or resolve only to, reserved
// addresses; without it only the scheme and URL shape are enforced.
type Policy struct {
	protectPrivate bool
	resolver       *net.Resolver
}

func NewPolicy(protectPrivate bool) *Policy {
	return &Policy{
		protectPrivate: protectPrivate,
		// PreferGo keeps lookups going through this resolver instead of
		// whatever the platform caches
		resolver: &net.Resolver{PreferGo: true},
	}
}

// ProtectsPrivate reports whether dial targets must be revalidated.
func (p *Policy) ProtectsPrivate() bool {
	return p != nil && p.protectPrivate
}

// ValidateSourceURL checks a source image URL before any request is made.
// The URL must be absolute with an http or https scheme and a non-empty
// host; under protectPrivate the host must not sit in a reserved range.
func (p *Policy) ValidateSourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, errors.New("source URL must be absolute")
	}
	if !AllowedScheme(u) {
		return nil, errors.New("only http and https sources are allowed")
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.New("source URL has no host")
	}

	if !p.ProtectsPrivate() {
		return u, nil
	}

	if strings.EqualFold(host, "localhost") {
		return nil, errors.New("localhost is not a valid source host")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsReservedAddr(addr) {
			return nil, errors.New("source host is in a reserved range")
		}
		return u, nil
	}

	if _, err := p.resolveAllowed(context.Background(), host); err != nil {
		return nil, err
	}
	return u, nil
}

// DialContext is installed as the fetcher's transport dialer. Literal
// addresses are checked directly; hostnames are resolved here and the
// connection goes to the vetted address, so a second lookup cannot swap in
// a different answer.
func (p *Policy) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:  dialTimeout,
		Resolver: p.resolver,
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsReservedAddr(addr) {
			return nil, errors.New("dial target is in a reserved range")
		}
		return dialer.DialContext(ctx, network, address)
	}

	addrs, err := p.resolveAllowed(ctx, host)
	if err != nil {
		return nil, err
	}
	return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
}

// resolveAllowed looks up host and drops every reserved address from the
// answer. An answer with nothing left is an error, not an empty list.
func (p *Policy) resolveAllowed(ctx context.Context, host string) ([]netip.Addr, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addrs, err := p.resolver.LookupNetIP(lookupCtx, "ip", host)
	if err != nil {
		return nil, err
	}

	allowed := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if !IsReservedAddr(a) {
			allowed = append(allowed, a)
		}
	}
	if len(allowed) == 0 {
		return nil, errors.New("host resolves only to reserved addresses")
	}
	return allowed, nil
}
