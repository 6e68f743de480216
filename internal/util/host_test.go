package util

import "testing"

func TestPublicHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", "localhost"},
		{"0.0.0.0", "localhost"},
		{"::", "localhost"},
		{"[::]", "localhost"},
		{"127.0.0.1", "127.0.0.1"},
		{"example.com", "example.com"},
		{"::1", "::1"},
	}
	for _, tt := range tests {
		if got := PublicHost(tt.host); got != tt.want {
			t.Errorf("PublicHost(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestOriginURL(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		host   string
		port   int
		want   string
	}{
		{"http default port omitted", "http", "example.com", 80, "http://example.com"},
		{"https default port omitted", "https", "example.com", 443, "https://example.com"},
		{"http on 443 keeps port", "http", "example.com", 443, "http://example.com:443"},
		{"https on 80 keeps port", "https", "example.com", 80, "https://example.com:80"},
		{"custom port", "http", "127.0.0.1", 3000, "http://127.0.0.1:3000"},
		{"wildcard host", "http", "0.0.0.0", 3000, "http://localhost:3000"},
		{"empty host", "https", "", 8443, "https://localhost:8443"},
		{"no port", "http", "example.com", 0, "http://example.com"},
		{"ipv6 loopback", "http", "::1", 3000, "http://[::1]:3000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OriginURL(tt.scheme, tt.host, tt.port); got != tt.want {
				t.Errorf("OriginURL(%q, %q, %d) = %q, want %q", tt.scheme, tt.host, tt.port, got, tt.want)
			}
		})
	}
}
