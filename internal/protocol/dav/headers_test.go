package dav

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepth(t *testing.T) {
	tests := []struct {
		raw     string
		def     Depth
		want    Depth
		wantErr bool
	}{
		{"", DepthInfinity, DepthInfinity, false},
		{"", Depth0, Depth0, false},
		{"0", DepthInfinity, Depth0, false},
		{"1", DepthInfinity, Depth1, false},
		{"infinity", Depth0, DepthInfinity, false},
		{"Infinity", Depth0, DepthInfinity, false},
		{"2", Depth0, Depth0, true},
	}

	for _, tt := range tests {
		got, err := ParseDepth(header("Depth", tt.raw), tt.def)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrBadHeader, "Depth=%q", tt.raw)
			continue
		}
		require.NoError(t, err, "Depth=%q", tt.raw)
		assert.Equal(t, tt.want, got, "Depth=%q", tt.raw)
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", DefaultLockTimeout},
		{"Second-30", 30 * time.Second},
		{"Second-999999", MaxLockTimeout},
		{"Infinite", MaxLockTimeout},
		{"Infinite, Second-30", MaxLockTimeout},
		{"garbage, Second-30", 30 * time.Second},
		{"garbage", DefaultLockTimeout},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTimeout(header("Timeout", tt.raw)), "Timeout=%q", tt.raw)
	}
}

func TestParseDestination(t *testing.T) {
	p, err := ParseDestination(header("Destination", "/dst/file.txt"), "example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "/dst/file.txt", p.String())

	// absolute URI on our own host is fine
	p, err = ParseDestination(header("Destination", "http://example.com/dst/"), "example.com", "")
	require.NoError(t, err)
	assert.True(t, p.IsCollection())

	// foreign host is a cross-server destination
	_, err = ParseDestination(header("Destination", "http://elsewhere.net/dst"), "example.com", "")
	assert.ErrorIs(t, err, ErrDestinationRemote)

	// prefix is stripped and restored
	p, err = ParseDestination(header("Destination", "/dav/x%20y.txt"), "example.com", "/dav")
	require.NoError(t, err)
	assert.Equal(t, "/x y.txt", p.String())
	assert.Equal(t, "/dav/x%20y.txt", p.URL())

	_, err = ParseDestination(http.Header{}, "example.com", "")
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestParseOverwrite(t *testing.T) {
	for raw, want := range map[string]bool{"": true, "T": true, "F": false} {
		got, err := ParseOverwrite(header("Overwrite", raw))
		require.NoError(t, err)
		assert.Equal(t, want, got, "Overwrite=%q", raw)
	}
	_, err := ParseOverwrite(header("Overwrite", "yes"))
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestParseLockTokenHeader(t *testing.T) {
	token, err := ParseLockTokenHeader(header("Lock-Token", "<opaquelocktoken:abc>"))
	require.NoError(t, err)
	assert.Equal(t, "opaquelocktoken:abc", token)

	_, err = ParseLockTokenHeader(header("Lock-Token", "opaquelocktoken:abc"))
	assert.ErrorIs(t, err, ErrBadHeader)
	_, err = ParseLockTokenHeader(http.Header{})
	assert.ErrorIs(t, err, ErrBadHeader)
}
