package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when a destination resolves to a private or
// reserved address.
var ErrBlockedAddress = errors.New("destination address is not allowed")

var privateNetworks = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP returns true if the IP is in a private, loopback, link-local or reserved range
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Guard rejects outbound connections to private destinations. Loopback can
// be allowed for local development and tests.
type Guard struct {
	AllowLoopback bool
}

func (g Guard) allowed(ip net.IP) bool {
	if g.AllowLoopback && ip.IsLoopback() {
		return true
	}
	return !IsPrivateIP(ip)
}

// CheckURL validates scheme and, for literal IP hosts, the address. Hostnames
// are checked again at dial time by Control.
func (g Guard) CheckURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url: scheme %q not allowed", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("invalid url: missing host")
	}
	if ip := net.ParseIP(u.Hostname()); ip != nil && !g.allowed(ip) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return u, nil
}

// Control is a net.Dialer Control hook that runs after DNS resolution, so
// hostnames that resolve to private addresses are refused as well.
func (g Guard) Control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unresolved host %q", ErrBlockedAddress, host)
	}
	if !g.allowed(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// DialContext returns a dial function enforcing the guard.
func (g Guard) DialContext(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second, Control: g.Control}
	return d.DialContext
}
