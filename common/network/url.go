package network

import (
	"net"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"
)

// ValidateExternalURL rejects URLs that could be abused to reach internal
// services when the gateway fetches user supplied content (for example
// image_url entries in chat messages). Only http and https are accepted,
// and hostnames that resolve to loopback, private, or link-local ranges
// are refused.
func ValidateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "parse url")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.Errorf("unsupported url scheme %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return errors.New("url has no host")
	}

	if isLocalHostname(host) {
		return errors.Errorf("host %q points to a local address", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsForbiddenIP(ip) {
			return errors.Errorf("ip %s is not a public address", ip)
		}
		return nil
	}

	// Resolve the hostname so DNS entries pointing at internal ranges are
	// caught before the request is made. The dialer control hook re-checks
	// at connect time to close the rebinding window.
	ips, err := net.LookupIP(host)
	if err != nil {
		return errors.Wrapf(err, "resolve host %q", host)
	}
	for _, ip := range ips {
		if IsForbiddenIP(ip) {
			return errors.Errorf("host %q resolves to non-public address %s", host, ip)
		}
	}

	return nil
}

// IsForbiddenIP reports whether the address must never be dialed on behalf
// of client supplied URLs: loopback, unspecified, multicast, link-local,
// RFC1918 private, and carrier-grade NAT ranges.
func IsForbiddenIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	return isCarrierGradeNAT(ip)
}

func isLocalHostname(host string) bool {
	lowered := strings.ToLower(strings.TrimSuffix(host, "."))
	return lowered == "localhost" || strings.HasSuffix(lowered, ".localhost") ||
		lowered == "localhost.localdomain"
}

// isCarrierGradeNAT reports whether ip falls in 100.64.0.0/10 (RFC 6598).
func isCarrierGradeNAT(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127
}
