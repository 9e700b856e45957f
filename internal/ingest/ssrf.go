package ingest

import (
	"fmt"
	"net"
	"net/url"
)

const maxURLLength = 2048

// streamSchemes are the URL schemes ffmpeg is allowed to open.
var streamSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"rtsp":  true,
	"rtmp":  true,
	"srt":   true,
}

var lookupIP = net.LookupIP

// ValidateURL checks that a stream URL is safe to hand to ffmpeg:
//   - max length 2048 characters
//   - scheme must be a network stream scheme (no file:, pipe:, concat:)
//   - no embedded credentials
//   - unless allowPrivate, the host must resolve to public addresses only
func ValidateURL(rawURL string, allowPrivate bool) error {
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("URL too long (%d chars, max %d)", len(rawURL), maxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !streamSchemes[u.Scheme] {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("URLs with embedded credentials are not allowed")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no hostname")
	}
	if allowPrivate {
		return nil
	}

	ips, err := lookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("no addresses for %q", host)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", ip)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
