// ABOUTME: Tests for mDNS discovery
// ABOUTME: Validates manager lifecycle, TXT records and answer parsing
package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/Sendspin/peakd/internal/version"
	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	manager := NewManager(Config{ServiceName: "studio", Port: 7777})
	defer manager.Stop()

	if manager.Servers() == nil {
		t.Fatal("Servers() returned nil channel")
	}
	if manager.config.Port != 7777 {
		t.Errorf("expected port 7777, got %d", manager.config.Port)
	}
}

func TestManagerStop(t *testing.T) {
	manager := NewManager(Config{ServiceName: "test", Port: 7777})
	manager.Stop()

	select {
	case <-manager.ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("context should be cancelled after Stop()")
	}
}

func TestTXTRecords(t *testing.T) {
	tests := []struct {
		name   string
		wsPort int
		want   []string
	}{
		{"tcp only", 0, []string{"version=" + version.Version}},
		{"with gateway", 7778, []string{"version=" + version.Version, "ws=7778", "path=/peaks"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Config{ServiceName: "x", Port: 7777, WSPort: tt.wsPort})
			defer m.Stop()

			got := m.txtRecords()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("record %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestServerFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "studio._peakd._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       7777,
		InfoFields: []string{"version=0.3.0", "ws=7778", "junk"},
	}

	server := serverFromEntry(entry)
	if server == nil {
		t.Fatal("expected a server")
	}
	if server.Name != "studio" {
		t.Errorf("expected instance name studio, got %q", server.Name)
	}
	if server.Addr() != "192.168.1.20:7777" {
		t.Errorf("unexpected address %q", server.Addr())
	}
	if server.WSPort != 7778 || server.Version != "0.3.0" {
		t.Errorf("unexpected TXT parse: %+v", server)
	}

	if serverFromEntry(&mdns.ServiceEntry{Name: "v6only", Port: 1}) != nil {
		t.Error("expected entries without IPv4 to be skipped")
	}
}

func TestInstanceName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"studio._peakd._tcp.local.", "studio"},
		{"my.box._peakd._tcp.local.", "my.box"},
		{"bare", "bare"},
	}
	for _, tt := range tests {
		if got := instanceName(tt.in); got != tt.want {
			t.Errorf("instanceName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestGetLocalIPs(t *testing.T) {
	ips, err := getLocalIPs()
	if err != nil {
		t.Fatalf("getLocalIPs failed: %v", err)
	}
	if ips == nil {
		t.Error("getLocalIPs returned nil slice")
	}

	for _, ip := range ips {
		if ip.To4() == nil {
			t.Errorf("getLocalIPs returned non-IPv4 address: %v", ip)
		}
		if ip.IsLoopback() {
			t.Errorf("getLocalIPs returned loopback address: %v", ip)
		}
	}
}
