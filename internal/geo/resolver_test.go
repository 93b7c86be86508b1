package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanStripsMappedPrefix(t *testing.T) {
	assert.Equal(t, "192.168.1.50", Clean("::ffff:192.168.1.50"))
	assert.Equal(t, "2001::7334", Clean("2001::7334"))
	assert.Equal(t, "8.8.8.8", Clean("8.8.8.8"))
}

func TestIsPrivate(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"10.0.0.1", true},
		{"192.168.1.50", true},
		{"127.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"172.15.0.1", false},
		{"::ffff:192.168.1.50", true},
		{"::ffff:8.8.8.8", false},
		{"8.8.8.8", false},
		{"2001::7334", false},
		{"not-an-ip", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsPrivate(tc.ip), tc.ip)
	}
}

func TestResolvePrivateAddress(t *testing.T) {
	r := &Resolver{}

	id := r.Resolve("::ffff:192.168.1.50", "")
	assert.Equal(t, "192.168.1.50", id.IP)
	assert.Equal(t, "LAN", id.Country)
	assert.Equal(t, "Private Network", id.ASName)
	assert.Equal(t, "Internal Device", id.HostName)
}

func TestResolveKeepsRegistryName(t *testing.T) {
	r := &Resolver{}

	id := r.Resolve("::ffff:10.0.0.7", "Main-Server")
	assert.Equal(t, "Main-Server", id.HostName)

	id = r.Resolve("203.0.113.9", "Edge-Router")
	assert.Equal(t, "Edge-Router", id.HostName)
}

func TestResolveUnknownExternal(t *testing.T) {
	// No mmdb readers: external addresses degrade to Unknown instead of
	// failing the primary response.
	r := &Resolver{}

	id := r.Resolve("203.0.113.9", "")
	assert.Equal(t, "203.0.113.9", id.IP)
	assert.Equal(t, "Unknown", id.Country)
	assert.Equal(t, "Unknown", id.ASName)
	assert.Equal(t, "Unknown Host", id.HostName)
}
