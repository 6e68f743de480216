package util

import (
	"net"
	"strconv"
	"strings"
)

// PublicHost maps wildcard and empty listen hosts to "localhost" so they can be
// used in URLs handed to clients.
func PublicHost(host string) string {
	h := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if h == "" {
		return "localhost"
	}
	if ip := net.ParseIP(h); ip != nil && ip.IsUnspecified() {
		return "localhost"
	}
	return host
}

// OriginURL builds scheme://host[:port]. The port is omitted for http/80,
// https/443 and when port is not positive.
func OriginURL(scheme, host string, port int) string {
	host = PublicHost(host)
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	if port <= 0 || (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + strconv.Itoa(port)
}
