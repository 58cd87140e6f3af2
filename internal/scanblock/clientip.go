package scanblock

import (
	"net"
	"net/http"
	"strings"
)

// ProxyTrust resolves client addresses, honouring forwarding headers only
// when the direct peer is a trusted proxy.
type ProxyTrust struct {
	nets []*net.IPNet
	ips  []net.IP
}

// NewProxyTrust creates a ProxyTrust from IP addresses and CIDR ranges.
// Unparseable entries are skipped.
func NewProxyTrust(trusted []string) *ProxyTrust {
	p := &ProxyTrust{}

	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil {
				p.nets = append(p.nets, network)
			}
			continue
		}

		if ip := net.ParseIP(entry); ip != nil {
			p.ips = append(p.ips, ip)
		}
	}
	return p
}

// Empty reports whether no proxies are trusted.
func (p *ProxyTrust) Empty() bool {
	return p == nil || (len(p.nets) == 0 && len(p.ips) == 0)
}

// IsTrusted reports whether addr (with or without a port) is a trusted proxy.
func (p *ProxyTrust) IsTrusted(addr string) bool {
	if p.Empty() {
		return false
	}

	ip := net.ParseIP(stripPort(addr))
	if ip == nil {
		return false
	}
	for _, trusted := range p.ips {
		if trusted.Equal(ip) {
			return true
		}
	}
	for _, network := range p.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating client address of r. Forwarding headers
// are used only when the direct peer is trusted: X-Forwarded-For is walked
// from the right, skipping trusted proxies, and the first other entry that
// parses as an IP wins. X-Real-IP and then the remote address are the
// fallbacks. Ports are removed and IPs normalised.
func (p *ProxyTrust) ClientIP(r *http.Request) string {
	direct := normalizeHost(r.RemoteAddr)
	if !p.IsTrusted(r.RemoteAddr) {
		return direct
	}

	if client := p.forwardedFor(r.Header.Values("X-Forwarded-For")); client != "" {
		return client
	}

	if client := parseHostIP(r.Header.Get("X-Real-IP")); client != "" {
		return client
	}

	return direct
}

// forwardedFor returns the rightmost untrusted IP of the X-Forwarded-For
// chain, or "" when there is none. Entries left of the first non-IP value
// are client supplied and ignored.
func (p *ProxyTrust) forwardedFor(values []string) string {
	var hops []string
	for _, v := range values {
		hops = append(hops, strings.Split(v, ",")...)
	}

	for i := len(hops) - 1; i >= 0; i-- {
		ip := parseHostIP(hops[i])
		if ip == "" {
			return ""
		}
		if !p.IsTrusted(ip) {
			return ip
		}
	}
	return ""
}

// HostFunc returns p.ClientIP as a HostFunc.
func (p *ProxyTrust) HostFunc() HostFunc {
	return p.ClientIP
}

// RemoteHost returns the remote address of r without its port.
func RemoteHost(r *http.Request) string {
	return normalizeHost(r.RemoteAddr)
}

// normalizeHost strips an optional port and brackets and canonicalises IPs.
// Values that are not IPs are returned trimmed but otherwise unchanged.
func normalizeHost(addr string) string {
	host := stripPort(strings.TrimSpace(addr))
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

// parseHostIP is normalizeHost restricted to IPs: anything else yields "".
func parseHostIP(addr string) string {
	ip := net.ParseIP(stripPort(strings.TrimSpace(addr)))
	if ip == nil {
		return ""
	}
	return ip.String()
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}
