package hostapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

var privateRanges = mustParseCIDRs(
	"0.0.0.0/8",      // "this" network
	"127.0.0.0/8",    // IPv4 loopback
	"10.0.0.0/8",     // RFC1918
	"172.16.0.0/12",  // RFC1918
	"192.168.0.0/16", // RFC1918
	"100.64.0.0/10",  // carrier-grade NAT
	"169.254.0.0/16", // link-local, cloud metadata services
	"::/128",         // unspecified
	"::1/128",        // IPv6 loopback
	"fc00::/7",       // IPv6 unique local address
	"fe80::/10",      // IPv6 link-local
	"224.0.0.0/4",    // IPv4 multicast
	"ff00::/8",       // IPv6 multicast
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// IsPrivateOrReservedIP checks if an IP is in private/reserved ranges.
func IsPrivateOrReservedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, block := range privateRanges {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// resolveAndValidate resolves hostname once and returns an address that is
// safe to dial. Private and reserved addresses are only allowed when a
// network grant names the host literally.
func resolveAndValidate(ctx context.Context, resolver *net.Resolver, hostname string, checker *CapabilityChecker) (string, error) {
	var ips []net.IP
	if ip := net.ParseIP(hostname); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := resolver.LookupIP(ctx, "ip", hostname)
		if err != nil {
			return "", fmt.Errorf("failed to resolve host: %w", err)
		}
		ips = resolved
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no addresses for host %s", hostname)
	}

	for _, ip := range ips {
		if !IsPrivateOrReservedIP(ip) {
			continue
		}
		if checker.NamesHost(hostname) {
			slog.DebugContext(ctx, "private network access granted by literal host permission",
				"host", hostname, "ip", ip.String())
			continue
		}
		return "", fmt.Errorf("destination %s resolves to private/reserved IP %s (requires a net permission naming the host)", hostname, ip.String())
	}
	return ips[0].String(), nil
}
