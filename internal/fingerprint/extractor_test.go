package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_DeviceHeaderPresent(t *testing.T) {
	fp := Extract("203.0.113.9:51234", map[string]string{
		"User-Agent":  "Mozilla/5.0",
		"X-Device-Id": "dev-abc-123",
	})

	assert.Equal(t, "203.0.113.9", fp.IP)
	assert.Equal(t, "dev-abc-123", fp.DeviceID)
	assert.False(t, fp.Degraded)
	assert.NotEmpty(t, fp.UserAgentHash)
}

func TestExtract_SynthesizedDeviceID(t *testing.T) {
	headers := map[string]string{
		"User-Agent":      "curl/8.1",
		"Accept-Language": "en-US",
		"Accept-Encoding": "gzip",
	}
	fp := Extract("198.51.100.7:80", headers)

	require.NotEmpty(t, fp.DeviceID)
	assert.True(t, fp.Degraded, "missing device header should degrade the fingerprint")

	// Same headers produce the same synthesized device ID.
	again := Extract("198.51.100.7:80", headers)
	assert.Equal(t, fp.DeviceID, again.DeviceID)

	// Different headers produce a different device ID.
	headers["Accept-Language"] = "de-DE"
	other := Extract("198.51.100.7:80", headers)
	assert.NotEqual(t, fp.DeviceID, other.DeviceID)
}

func TestExtract_NoHeadersStillProducesFingerprint(t *testing.T) {
	fp := Extract("192.0.2.1:4444", nil)

	assert.Equal(t, "192.0.2.1", fp.IP)
	assert.NotEmpty(t, fp.DeviceID)
	assert.True(t, fp.Degraded)
}

func TestExtract_HeaderNamesCaseInsensitive(t *testing.T) {
	fp := Extract("192.0.2.1:4444", map[string]string{
		"x-device-id": "dev-1",
		"user-agent":  "bot",
	})
	assert.Equal(t, "dev-1", fp.DeviceID)
	assert.Equal(t, "bot", fp.UserAgent)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		realIP       string
		want         string
	}{
		{"forwarded-for single", "10.0.0.1:80", "203.0.113.5", "", "203.0.113.5"},
		{"forwarded-for chain takes first", "10.0.0.1:80", "203.0.113.5, 10.0.0.2", "", "203.0.113.5"},
		{"real-ip fallback", "10.0.0.1:80", "", "198.51.100.1", "198.51.100.1"},
		{"remote addr strips port", "198.51.100.2:9090", "", "", "198.51.100.2"},
		{"remote addr without port", "198.51.100.3", "", "", "198.51.100.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientIP(tt.remoteAddr, tt.forwardedFor, tt.realIP))
		})
	}
}
