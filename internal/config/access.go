package config

import (
	"net"
	"os"
	"strings"
)

// AllowedNetworks returns CIDR blocks from PROBE_ALLOW_NETWORKS.
// Bare IPs are widened to a single-host network.
func AllowedNetworks() []*net.IPNet {
	value := strings.TrimSpace(os.Getenv("PROBE_ALLOW_NETWORKS"))
	if value == "" {
		return nil
	}
	var result []*net.IPNet
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil {
				if v4 := ip.To4(); v4 != nil {
					ip = v4
				}
				mask := net.CIDRMask(len(ip)*8, len(ip)*8)
				result = append(result, &net.IPNet{IP: ip, Mask: mask})
			}
			continue
		}
		if _, network, err := net.ParseCIDR(part); err == nil {
			result = append(result, network)
		}
	}
	return result
}
