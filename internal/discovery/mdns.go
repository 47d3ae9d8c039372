// ABOUTME: mDNS advertisement and browsing for soundsystem control endpoints
// ABOUTME: Lets remote hosts find a running engine on the local network
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/logging"
)

const (
	// ServiceType is the DNS-SD type of a soundsystem control endpoint
	ServiceType = "_soundsystem._tcp"
	// DefaultPath is the websocket path advertised in the TXT record
	DefaultPath = "/soundsystem"

	browseTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	EngineID    string
}

// Manager handles mDNS operations
type Manager struct {
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	endpoints chan *Endpoint
	logger    zerolog.Logger
}

// Endpoint describes a discovered control endpoint
type Endpoint struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port of the endpoint
func (e *Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, fmt.Sprint(e.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		endpoints: make(chan *Endpoint, 10),
		logger:    logging.Component("discovery"),
	}
}

// txtRecords builds the TXT fields published with the service
func (m *Manager) txtRecords() []string {
	txt := []string{"path=" + m.config.Path}
	if m.config.EngineID != "" {
		txt = append(txt, "engine="+m.config.EngineID)
	}
	return txt
}

// Advertise publishes the control endpoint until Stop is called
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

	m.logger.Info().
		Str("name", m.config.ServiceName).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for control endpoints until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go m.collect(entries)

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: browseTimeout,
			Entries: entries,
		}
		if err := mdns.Query(params); err != nil {
			m.logger.Debug().Err(err).Msg("mDNS query failed")
		}
		close(entries)
	}
}

func (m *Manager) collect(entries <-chan *mdns.ServiceEntry) {
	for entry := range entries {
		ep := entryEndpoint(entry)
		if ep == nil {
			continue
		}
		m.logger.Info().Str("name", ep.Name).Str("addr", ep.Addr()).Msg("Discovered endpoint")

		select {
		case m.endpoints <- ep:
		case <-m.ctx.Done():
			return
		}
	}
}

// entryEndpoint converts a service entry, returning nil when it has no
// IPv4 address
func entryEndpoint(entry *mdns.ServiceEntry) *Endpoint {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	ep := &Endpoint{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: DefaultPath,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			ep.Path = path
		}
	}
	return ep
}

// Endpoints returns the channel of discovered endpoints
func (m *Manager) Endpoints() <-chan *Endpoint {
	return m.endpoints
}

// Stop ends advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns the IPv4 addresses of interfaces that are up,
// skipping loopback
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

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
