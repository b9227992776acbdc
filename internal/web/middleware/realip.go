package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// TrustedRealIP rewrites r.RemoteAddr to the client address from X-Real-IP or
// X-Forwarded-For, but ONLY when the connection comes from a trusted proxy
// CIDR. Otherwise the connection address is kept, so clients cannot spoof
// their way around rate limits or audit attribution.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parseTrustedNets(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isTrusted(extractIP(r.RemoteAddr), trusted) {
				if ip := forwardedIP(r); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client address without port.
func ClientIP(r *http.Request) string {
	if ip := extractIP(r.RemoteAddr); ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}

func parseTrustedNets(cidrs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}

		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, network)
			continue
		}

		// Bare IPs are accepted as single-host networks.
		ip := net.ParseIP(cidr)
		if ip == nil {
			slog.Warn("realip: invalid trusted proxy CIDR, skipping", "cidr", cidr, "error", err)
			continue
		}
		mask := net.CIDRMask(128, 128)
		if ip.To4() != nil {
			mask = net.CIDRMask(32, 32)
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
	}
	return nets
}

// forwardedIP prefers X-Real-IP, then the first X-Forwarded-For hop.
// Invalid values are ignored.
func forwardedIP(r *http.Request) net.IP {
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return net.ParseIP(rip)
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return nil
	}
	first, _, _ := strings.Cut(xff, ",")
	return net.ParseIP(strings.TrimSpace(first))
}

// extractIP parses an IP address from a host:port string or plain IP.
func extractIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}

func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
