// Package fingerprint derives a stable identity tuple from inbound request
// metadata. Extraction is a pure function: it never performs I/O and never
// rejects a request, it only degrades when headers are missing.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"net"
	"strings"

	"github.com/giftwell/fraudguard/internal/domain/model"
)

const (
	// HeaderDeviceID is the caller-supplied device identifier. When absent
	// the extractor synthesizes a device ID from low-entropy headers.
	HeaderDeviceID = "X-Device-Id"

	headerForwardedFor   = "X-Forwarded-For"
	headerRealIP         = "X-Real-IP"
	headerUserAgent      = "User-Agent"
	headerAcceptLanguage = "Accept-Language"
	headerAcceptEncoding = "Accept-Encoding"
)

// Extract produces a fingerprint from a source address and header set.
// Header names are matched case-insensitively.
func Extract(remoteAddr string, headers map[string]string) model.Fingerprint {
	get := func(name string) string {
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	ua := get(headerUserAgent)
	fp := model.Fingerprint{
		IP:            ClientIP(remoteAddr, get(headerForwardedFor), get(headerRealIP)),
		UserAgent:     ua,
		UserAgentHash: hash32(ua),
	}

	if deviceID := get(HeaderDeviceID); deviceID != "" {
		fp.DeviceID = deviceID
	} else {
		// No device header: fall back to a hash of low-entropy headers.
		fp.DeviceID = hash32(ua + "|" + get(headerAcceptLanguage) + "|" + get(headerAcceptEncoding))
		fp.Degraded = true
	}
	if ua == "" {
		fp.Degraded = true
	}
	return fp
}

// ClientIP determines the client address, preferring X-Forwarded-For
// (first hop), then X-Real-IP, then the transport remote address with any
// port stripped.
func ClientIP(remoteAddr, forwardedFor, realIP string) string {
	if forwardedFor != "" {
		if idx := strings.IndexByte(forwardedFor, ','); idx != -1 {
			return strings.TrimSpace(forwardedFor[:idx])
		}
		return strings.TrimSpace(forwardedFor)
	}
	if realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func hash32(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
