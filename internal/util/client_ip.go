package util

import (
	"net"
	"net/http"
	"strings"
)

// TrustedProxies is the allowlist of reverse proxies whose forwarding
// headers are honoured. A nil value trusts nobody.
type TrustedProxies struct {
	nets []*net.IPNet
}

// NewTrustedProxies parses IPs and CIDRs. It returns nil when entries holds
// nothing usable.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var nets []*net.IPNet
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		n, err := parseNet(entry)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	if len(nets) == 0 {
		return nil, nil
	}
	return &TrustedProxies{nets: nets}, nil
}

func parseNet(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, n, err := net.ParseCIDR(entry)
		return n, err
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, &net.ParseError{Type: "IP address", Text: entry}
	}
	size := 8 * net.IPv6len
	if v4 := ip.To4(); v4 != nil {
		ip, size = v4, 8*net.IPv4len
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(size, size)}, nil
}

// Contains reports whether ip belongs to a trusted proxy.
func (t *TrustedProxies) Contains(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// fromProxy reports whether the direct peer of r is trusted.
func (t *TrustedProxies) fromProxy(r *http.Request) bool {
	return t.Contains(hostIP(r.RemoteAddr))
}

// ClientIP returns the caller address used for audit logs, alert counters and
// per-caller limits. X-Forwarded-For is walked right to left and the first
// untrusted hop wins; X-Real-IP is the fallback. Both are ignored unless the
// direct peer is a trusted proxy.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer := hostIP(r.RemoteAddr)
	if peer == nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(peer) {
		return peer.String()
	}
	hops := forwardedHops(r.Header.Get("X-Forwarded-For"))
	if len(hops) > 0 {
		hops = append(hops, peer)
		for i := len(hops) - 1; i >= 0; i-- {
			if !trusted.Contains(hops[i]) {
				return hops[i].String()
			}
		}
		return hops[0].String()
	}
	if real := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); real != nil {
		return real.String()
	}
	return peer.String()
}

// ExternalURL rebuilds the absolute URL the caller used, including the query.
// Telephony vendors sign that URL, so X-Forwarded-Proto and X-Forwarded-Host
// are only honoured from a trusted proxy.
func ExternalURL(r *http.Request, trusted *TrustedProxies) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if trusted.fromProxy(r) {
		if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwdHost := firstValue(r.Header.Get("X-Forwarded-Host")); fwdHost != "" {
			host = fwdHost
		}
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func forwardedHops(raw string) []net.IP {
	var out []net.IP
	for _, part := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

func firstValue(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	return strings.ToLower(strings.TrimSpace(first))
}

func hostIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}
