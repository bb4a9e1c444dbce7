package netutil

import (
	"errors"
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	cases := map[string]bool{
		"10.1.2.3":        true,
		"172.20.0.1":      true,
		"192.168.1.1":     true,
		"127.0.0.1":       true,
		"169.254.169.254": true,
		"100.64.0.1":      true,
		"0.0.0.0":         true,
		"::1":             true,
		"fd00::1":         true,
		"8.8.8.8":         false,
		"2606:4700::1":    false,
	}
	for addr, want := range cases {
		if got := IsPrivateIP(net.ParseIP(addr)); got != want {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", addr, got, want)
		}
	}
}

func TestGuard_CheckURL(t *testing.T) {
	strict := Guard{}
	local := Guard{AllowLoopback: true}

	if _, err := strict.CheckURL("https://example.com/post"); err != nil {
		t.Errorf("public hostname rejected: %v", err)
	}
	if _, err := strict.CheckURL("ftp://example.com/file"); err == nil {
		t.Error("ftp scheme accepted")
	}
	if _, err := strict.CheckURL("http://169.254.169.254/latest/meta-data"); !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("metadata address error = %v, want ErrBlockedAddress", err)
	}
	if _, err := strict.CheckURL("http://127.0.0.1:8080/"); !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("loopback accepted by strict guard: %v", err)
	}
	if _, err := local.CheckURL("http://127.0.0.1:8080/"); err != nil {
		t.Errorf("loopback rejected with AllowLoopback: %v", err)
	}
	if _, err := local.CheckURL("http://10.0.0.5/"); !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("private address accepted with AllowLoopback: %v", err)
	}
}

func TestGuard_Control(t *testing.T) {
	g := Guard{}
	if err := g.Control("tcp4", "192.168.0.10:443", nil); !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("Control(private) error = %v", err)
	}
	if err := g.Control("tcp4", "93.184.216.34:443", nil); err != nil {
		t.Errorf("Control(public) error = %v", err)
	}
	if err := (Guard{AllowLoopback: true}).Control("tcp6", "[::1]:80", nil); err != nil {
		t.Errorf("Control(loopback allowed) error = %v", err)
	}
}
