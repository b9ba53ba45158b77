package normalize

import (
	"net/netip"
	"strings"
)

// CanonicalIP strips a trailing port and compresses IPv6 notation. Strings
// that are not addresses come back unchanged so free-form source fields
// survive normalization.
func CanonicalIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Already a plain address.
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String()
	}

	// [::1]:8080 or 1.2.3.4:8080
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().String()
	}

	// [::1] without a port.
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			if addr, err := netip.ParseAddr(s[1:end]); err == nil {
				return addr.String()
			}
		}
	}

	// host:port where host is IPv4; a single colon cannot be bare IPv6.
	if strings.Count(s, ":") == 1 {
		host := s[:strings.Index(s, ":")]
		if addr, err := netip.ParseAddr(host); err == nil {
			return addr.String()
		}
	}
	return s
}
