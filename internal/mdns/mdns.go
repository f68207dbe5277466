// Package mdns advertises and discovers chat servers on the local network.
//
// A server advertises the DNS-SD service _chatlink._tcp with TXT records
// describing where its websocket and REST endpoints live, so a client can
// connect without typing addresses.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type for chat servers.
const ServiceType = "_chatlink._tcp"

// ProtocolVersion identifies the TXT record layout.
const ProtocolVersion = "1"

// Config holds configuration for advertisement.
type Config struct {
	// Port is the websocket server port.
	Port int

	// Path is the websocket endpoint path. Defaults to "/".
	Path string

	// APIPort is the REST API port. Zero means the websocket port.
	APIPort int

	// Name is a human-readable instance name. Defaults to the hostname.
	Name string

	// TLS advertises wss:// and https:// endpoints.
	TLS bool
}

// Advertiser manages DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates an advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start begins advertising. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "chatlink"
		} else {
			name = hostname
		}
	}

	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		buildTXT(a.config, name),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. Safe to call when not running.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the advertiser is registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// buildTXT encodes the advertisement metadata. Each string stays well under
// the 255-byte TXT limit.
func buildTXT(cfg Config, name string) []string {
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	apiPort := cfg.APIPort
	if apiPort == 0 {
		apiPort = cfg.Port
	}
	records := []string{
		"version=" + ProtocolVersion,
		"name=" + name,
		"path=" + path,
		"api=" + strconv.Itoa(apiPort),
	}
	if cfg.TLS {
		records = append(records, "tls=1")
	}
	return records
}

// DiscoveredServer is a chat server found on the network.
type DiscoveredServer struct {
	Name    string
	Host    string
	Port    int
	Path    string
	APIPort int
	Version string
	TLS     bool
}

// WebSocketURL returns the server's websocket endpoint.
func (s DiscoveredServer) WebSocketURL() string {
	path := s.Path
	if path == "" {
		path = "/"
	}
	scheme := "ws://"
	if s.TLS {
		scheme = "wss://"
	}
	return scheme + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + path
}

// APIURL returns the server's REST base URL.
func (s DiscoveredServer) APIURL() string {
	port := s.APIPort
	if port == 0 {
		port = s.Port
	}
	scheme := "http://"
	if s.TLS {
		scheme = "https://"
	}
	return scheme + net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// applyTXT fills fields from TXT records. Unknown keys are ignored.
func (s *DiscoveredServer) applyTXT(records []string) {
	for _, txt := range records {
		key, value, ok := strings.Cut(txt, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "version":
			s.Version = value
		case "name":
			s.Name = value
		case "path":
			s.Path = value
		case "tls":
			s.TLS = value == "1"
		case "api":
			if port, err := strconv.Atoi(value); err == nil {
				s.APIPort = port
			}
		}
	}
}

func fromEntry(entry *zeroconf.ServiceEntry) DiscoveredServer {
	server := DiscoveredServer{Name: entry.Instance, Port: entry.Port}

	// Prefer IPv4.
	if len(entry.AddrIPv4) > 0 {
		server.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		server.Host = entry.AddrIPv6[0].String()
	}

	server.applyTXT(entry.Text)
	return server
}

// Discover browses for chat servers until ctx is done and returns what was
// found.
func Discover(ctx context.Context) ([]DiscoveredServer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		servers []DiscoveredServer
		mu      sync.Mutex
		wg      sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			server := fromEntry(entry)
			if server.Host == "" {
				continue
			}
			mu.Lock()
			servers = append(servers, server)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes entries once ctx is done.
	wg.Wait()

	return servers, nil
}
