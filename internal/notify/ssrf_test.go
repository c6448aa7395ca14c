package notify

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://hooks.slack.com/services/T00/B00/xxx", false},
		{"http://example.com/webhook", false},
		{"ftp://example.com/file", true},
		{"https://127.0.0.1/webhook", true},
		{"https://10.0.0.1/webhook", true},
		{"https://192.168.1.1/webhook", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://[::1]/hook", true},
		{"http://0x7f000001/hook", true},
		{"http://2130706433/hook", true},
		{"http://0177.0.0.1/hook", true},
		{"not-a-url", true},
	}
	for _, tc := range tests {
		err := ValidateURL(tc.url)
		assert.Equal(t, tc.wantErr, err != nil, "ValidateURL(%q) err=%v", tc.url, err)
	}
}

func TestIsBlockedIP(t *testing.T) {
	assert.True(t, isBlockedIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isBlockedIP(net.ParseIP("::ffff:10.1.2.3")))
	assert.True(t, isBlockedIP(net.ParseIP("fd00::1")))
	assert.False(t, isBlockedIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isBlockedIP(net.ParseIP("2606:4700::1111")))
}

func TestSafeDialContext_BlocksLoopback(t *testing.T) {
	_, err := safeDialContext(t.Context(), "tcp", "127.0.0.1:80")
	assert.ErrorContains(t, err, "blocked")
}
