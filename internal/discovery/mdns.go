// ABOUTME: mDNS service discovery for peakd servers
// ABOUTME: Handles both advertisement (server side) and browsing (client side)
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Sendspin/peakd/internal/version"
	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service peakd servers advertise
const ServiceType = "_peakd._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	WSPort      int // 0 when the WebSocket gateway is disabled
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name    string
	Host    string
	Port    int
	WSPort  int
	Version string
}

// Addr returns host:port of the TCP endpoint
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// txtRecords describes the endpoints in key=value form
func (m *Manager) txtRecords() []string {
	txt := []string{"version=" + version.Version}
	if m.config.WSPort > 0 {
		txt = append(txt, "ws="+strconv.Itoa(m.config.WSPort), "path=/peaks")
	}
	return txt
}

// Advertise advertises this server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse continuously searches for peakd servers until Stop; results
// arrive on Servers
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop repeats the query until the manager stops
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if err := query(m.ctx, 3*time.Second, func(server *ServerInfo) {
			select {
			case m.servers <- server:
			case <-m.ctx.Done():
			}
		}); err != nil {
			log.Printf("mDNS query failed: %v", err)
			select {
			case <-time.After(time.Second):
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// Discover runs one query and returns the distinct servers that answered
// within timeout
func Discover(ctx context.Context, timeout time.Duration) ([]*ServerInfo, error) {
	seen := make(map[string]bool)
	var found []*ServerInfo

	err := query(ctx, timeout, func(server *ServerInfo) {
		key := server.Name + "@" + server.Addr()
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, server)
	})
	return found, err
}

// query runs a single mDNS query, calling fn from one goroutine per answer
func query(ctx context.Context, timeout time.Duration, fn func(*ServerInfo)) error {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if ctx.Err() != nil {
				continue
			}
			server := serverFromEntry(entry)
			if server == nil {
				continue
			}
			log.Printf("Discovered server: %s at %s", server.Name, server.Addr())
			fn(server)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	<-done
	return err
}

// serverFromEntry converts an mDNS answer; entries without an IPv4
// address are skipped
func serverFromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	if entry.AddrV4 == nil {
		return nil
	}

	server := &ServerInfo{
		Name: instanceName(entry.Name),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "ws":
			server.WSPort, _ = strconv.Atoi(value)
		case "version":
			server.Version = value
		}
	}
	return server
}

// instanceName strips the service and domain suffix from a full name like
// "studio._peakd._tcp.local."
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i > 0 {
		return full[:i]
	}
	return full
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
