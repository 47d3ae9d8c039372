// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers manager defaults, TXT records and entry conversion
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Living Room", Port: 8927})
	require.NotNil(t, mgr)
	defer mgr.Stop()

	assert.Equal(t, DefaultPath, mgr.config.Path)
	assert.NotNil(t, mgr.Endpoints())
}

func TestTXTRecords(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "x", Port: 1, Path: "/ctl", EngineID: "abc"})
	defer mgr.Stop()

	assert.Equal(t, []string{"path=/ctl", "engine=abc"}, mgr.txtRecords())
}

func TestEntryEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  *Endpoint
	}{
		{"nil entry", nil, nil},
		{"no ipv4", &mdns.ServiceEntry{Name: "a", Port: 1}, nil},
		{
			"default path",
			&mdns.ServiceEntry{Name: "a", AddrV4: net.IPv4(10, 0, 0, 2), Port: 8927},
			&Endpoint{Name: "a", Host: "10.0.0.2", Port: 8927, Path: DefaultPath},
		},
		{
			"path from txt",
			&mdns.ServiceEntry{Name: "b", AddrV4: net.IPv4(10, 0, 0, 3), Port: 9000, InfoFields: []string{"engine=1", "path=/x"}},
			&Endpoint{Name: "b", Host: "10.0.0.3", Port: 9000, Path: "/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, entryEndpoint(tt.entry))
		})
	}
}

func TestEndpointAddr(t *testing.T) {
	ep := &Endpoint{Host: "10.0.0.2", Port: 8927}
	assert.Equal(t, "10.0.0.2:8927", ep.Addr())
}

func TestGetLocalIPsSkipsLoopback(t *testing.T) {
	ips, err := getLocalIPs()
	require.NoError(t, err)
	for _, ip := range ips {
		assert.False(t, ip.IsLoopback(), "%s is loopback", ip)
		assert.NotNil(t, ip.To4())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "x", Port: 1})
	mgr.Stop()
	mgr.Stop()

	select {
	case <-mgr.ctx.Done():
	default:
		t.Fatal("context not canceled")
	}
}
