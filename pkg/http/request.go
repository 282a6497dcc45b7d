package http

import (
	"net"
	"net/http"
	"strings"
)

// IPResolver derives the client address of a request. Forwarding headers are
// honoured only when the direct peer is a trusted proxy, otherwise any
// client could choose its own rate-limit identity.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver parses trusted proxy CIDRs (bare addresses are accepted as
// single-host ranges). Invalid entries are skipped.
func NewIPResolver(trustedProxies []string) *IPResolver {
	r := &IPResolver{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
			continue
		}
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			r.trusted = append(r.trusted, ipNet)
		}
	}
	return r
}

// ClientIP returns the first valid X-Forwarded-For entry (then X-Real-IP)
// from a trusted proxy, falling back to the connection address.
func (r *IPResolver) ClientIP(req *http.Request) string {
	remoteIP := remoteAddr(req)
	if !r.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}

	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remoteIP
}

func (r *IPResolver) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range r.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
