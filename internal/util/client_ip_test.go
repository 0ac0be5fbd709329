package util

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10", "fd00::/8"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "untrusted peer ignores forwarded headers",
			remoteAddr: "198.51.100.10:1234",
			xff:        "203.0.113.5",
			xrip:       "203.0.113.6",
			trusted:    trusted,
			want:       "198.51.100.10",
		},
		{
			name:       "no proxies configured",
			remoteAddr: "10.0.0.20:1234",
			xff:        "203.0.113.5",
			want:       "10.0.0.20",
		},
		{
			name:       "trusted peer accepts x-forwarded-for",
			remoteAddr: "10.0.0.20:1234",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "spoofed leftmost hop is skipped",
			remoteAddr: "10.0.0.20:1234",
			xff:        "1.2.3.4, 203.0.113.5, 10.0.0.10",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip when forwarded-for is unusable",
			remoteAddr: "192.168.1.10:80",
			xff:        "garbage",
			xrip:       "203.0.113.7",
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "all hops trusted returns leftmost",
			remoteAddr: "10.0.0.20:1234",
			xff:        "10.0.0.5, 10.0.0.10",
			trusted:    trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "ipv6 proxy",
			remoteAddr: "[fd00::1]:443",
			xff:        "2001:db8::7",
			trusted:    trusted,
			want:       "2001:db8::7",
		},
		{
			name:       "ipv4 mapped peer",
			remoteAddr: "[::ffff:10.1.2.3]:80",
			xff:        "203.0.113.9",
			trusted:    trusted,
			want:       "203.0.113.9",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://example.com", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	got, err := NewTrustedProxies([]string{" ", ""})
	if err != nil || got != nil {
		t.Fatalf("expected nil set for blank entries, got %v err=%v", got, err)
	}
	for _, bad := range []string{"bad-cidr", "10.0.0.0/33"} {
		if _, err := NewTrustedProxies([]string{bad}); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}

func TestIsHTTPS(t *testing.T) {
	trusted, _ := NewTrustedProxies([]string{"10.0.0.1"})

	req := httptest.NewRequest("GET", "http://example.com", nil)
	req.RemoteAddr = "203.0.113.1:5000"
	req.Header.Set("X-Forwarded-Proto", "https")
	if IsHTTPS(req, trusted) {
		t.Fatalf("forwarded proto from untrusted peer must be ignored")
	}

	req.RemoteAddr = "10.0.0.1:5000"
	if !IsHTTPS(req, trusted) {
		t.Fatalf("expected forwarded proto from trusted proxy")
	}

	direct := httptest.NewRequest("GET", "https://example.com", nil)
	direct.TLS = &tls.ConnectionState{}
	if !IsHTTPS(direct, nil) {
		t.Fatalf("expected direct tls to count")
	}
}
