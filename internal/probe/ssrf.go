package probe

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// blockedHostnames are never probed regardless of resolution.
var blockedHostnames = map[string]bool{
	"metadata.google.internal": true,
	"169.254.169.254":          true, // AWS/Azure/GCP metadata
	"169.254.170.2":            true, // AWS ECS metadata
	"fd00:ec2::254":            true, // AWS IMDSv2 IPv6
}

// privateCIDRs cover loopback, RFC1918, link-local and unique-local ranges.
var privateCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
		"169.254.0.0/16", "127.0.0.0/8",
		"fc00::/7", "fe80::/10", "::1/128",
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, _ := net.ParseCIDR(c)
		nets = append(nets, n)
	}
	return nets
}()

// SSRFProtection rejects probe URLs that would reach internal infrastructure
// or cloud metadata endpoints.
type SSRFProtection struct {
	allowPrivateIPs bool
}

// NewSSRFProtection creates a URL validator. allowPrivateIPs permits probing
// RFC1918/loopback addresses for internal deployments.
func NewSSRFProtection(allowPrivateIPs bool) *SSRFProtection {
	return &SSRFProtection{allowPrivateIPs: allowPrivateIPs}
}

// ValidateURL checks scheme, hostname and every resolved address.
func (s *SSRFProtection) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if blockedHostnames[hostname] {
		return fmt.Errorf("access to %s is not allowed", hostname)
	}
	if isLocalhostName(hostname) && !s.allowPrivateIPs {
		return fmt.Errorf("access to localhost is not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname: %w", err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("hostname does not resolve to any IP address")
	}
	for _, ip := range ips {
		if err := s.validateIP(ip); err != nil {
			return fmt.Errorf("IP address %s is not allowed: %w", ip, err)
		}
	}
	return nil
}

func isLocalhostName(hostname string) bool {
	switch hostname {
	case "localhost", "localhost.localdomain", "127.0.0.1", "::1", "[::1]", "0.0.0.0":
		return true
	}
	return false
}

func (s *SSRFProtection) validateIP(ip net.IP) error {
	if s.allowPrivateIPs {
		return nil
	}
	for _, n := range privateCIDRs {
		if n.Contains(ip) {
			return fmt.Errorf("private address range")
		}
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("loopback or link-local address")
	}
	if ip.IsMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("multicast or unspecified address")
	}
	return nil
}
