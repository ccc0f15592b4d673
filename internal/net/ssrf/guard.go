// Package ssrf validates outbound URLs so agent tools cannot be steered
// into private networks, loopback services, or sensitive ports.
package ssrf

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// BlockedError is returned when a URL is rejected by SSRF protection.
type BlockedError struct {
	Message string
}

func (e *BlockedError) Error() string { return e.Message }

func blocked(format string, args ...any) *BlockedError {
	return &BlockedError{Message: fmt.Sprintf(format, args...)}
}

// blockedHostnames are always rejected regardless of resolution.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// dangerousSuffixes mark hostnames that address internal resources.
var dangerousSuffixes = []string{".localhost", ".local", ".internal"}

// blockedPorts rejects requests to well-known infrastructure services.
var blockedPorts = map[int]string{
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	465:   "smtps",
	587:   "smtp submission",
	3306:  "mysql",
	5432:  "postgres",
	6379:  "redis",
	9200:  "elasticsearch",
	11211: "memcached",
	27017: "mongodb",
}

// strippedHeaders are removed from outbound requests before they leave
// the process.
var strippedHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"X-Api-Key",
	"X-Auth-Token",
}

// StrippedHeaders returns the request headers the web tool removes.
func StrippedHeaders() []string {
	out := make([]string, len(strippedHeaders))
	copy(out, strippedHeaders)
	return out
}

// ValidateURL parses raw and enforces scheme, hostname, port, and
// private-range rules, resolving the host to check every address.
// Returns the parsed URL on success.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, blocked("scheme %q is not allowed, use http or https", u.Scheme)
	}

	host := normalizeHostname(u.Hostname())
	if host == "" {
		return nil, blocked("url has no host")
	}

	if port := u.Port(); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return nil, blocked("invalid port %q", port)
		}
		if service, bad := blockedPorts[p]; bad {
			return nil, blocked("port %d (%s) is blocked", p, service)
		}
	}

	if err := validateHost(host); err != nil {
		return nil, err
	}
	return u, nil
}

// validateHost rejects blocked hostnames and hosts that are, or resolve
// to, private/loopback/link-local addresses.
func validateHost(host string) error {
	if blockedHostnames[host] {
		return blocked("hostname %q is blocked", host)
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(host, suffix) {
			return blocked("hostname %q addresses an internal resource", host)
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return blocked("address %s is in a private or reserved range", addr)
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("unable to resolve host %q: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("host %q resolved to no addresses", host)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			return blocked("host %q resolved to an unparseable address", host)
		}
		if isPrivateAddr(addr.Unmap()) {
			return blocked("host %q resolves to a private or reserved address", host)
		}
	}
	return nil
}

// isPrivateAddr reports whether the address sits in a range outbound
// requests must not reach: loopback, RFC1918, link-local, CGNAT,
// unspecified, or IPv6 unique-local.
func isPrivateAddr(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() || addr.IsPrivate() {
		return true
	}
	if addr.Is4() {
		b := addr.As4()
		// 100.64.0.0/10 carrier-grade NAT.
		if b[0] == 100 && b[1] >= 64 && b[1] <= 127 {
			return true
		}
		// 0.0.0.0/8 current network.
		if b[0] == 0 {
			return true
		}
	}
	if addr.Is6() {
		b := addr.As16()
		// fc00::/7 unique local.
		if b[0]&0xfe == 0xfc {
			return true
		}
	}
	return false
}

func normalizeHostname(hostname string) string {
	h := strings.ToLower(strings.TrimSpace(hostname))
	h = strings.TrimSuffix(h, ".")
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}
