package detect

import (
	"fmt"
	"net/netip"
)

// Whitelist is a set of source CIDRs exempt from all detection, typically
// internal scanner ranges.
type Whitelist struct {
	nets []netip.Prefix
}

// NewWhitelist parses CIDR strings. Invalid entries fail loudly so a typo in
// config never silently narrows the exemption.
func NewWhitelist(cidrs []string) (*Whitelist, error) {
	w := &Whitelist{}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("parse whitelist cidr %q: %w", c, err)
		}
		w.nets = append(w.nets, p)
	}
	return w, nil
}

// Contains reports whether ip falls inside any whitelisted range. Strings
// that do not parse as addresses are never whitelisted.
func (w *Whitelist) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, n := range w.nets {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

// privateNets covers RFC 1918 space, used by the exfiltration rule to decide
// whether a destination is external.
var privateNets = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

func isPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, n := range privateNets {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}
