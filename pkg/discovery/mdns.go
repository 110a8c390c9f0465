// ABOUTME: mDNS browsing and advertisement for HEOS devices
// ABOUTME: Queries the HEOS service type and advertises simulated devices
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD type HEOS devices announce
	ServiceType = "_heos-audio._tcp"

	// CLIPort is where the text control protocol listens, independent of
	// the port in the announcement
	CLIPort = 1255

	defaultQueryTimeout = 3 * time.Second
)

// MDNS browses the local network for HEOS devices
type MDNS struct {
	// Service defaults to ServiceType
	Service string
	// Domain defaults to "local"
	Domain string
	// Timeout caps the query when ctx has no earlier deadline
	Timeout time.Duration
	// Port overrides CLIPort; set it to use the announced port instead
	Port int
	// UseAnnouncedPort dials the port from the SRV record
	UseAnnouncedPort bool
}

// Discover implements Source
func (m MDNS) Discover(ctx context.Context) ([]Candidate, error) {
	params := mdns.DefaultParams(m.service())
	params.Domain = m.domain()
	params.Timeout = m.queryTimeout(ctx)
	params.DisableIPv6 = true

	entries := make(chan *mdns.ServiceEntry, 16)
	params.Entries = entries

	found := make(chan []Candidate, 1)
	go func() {
		var out []Candidate
		for entry := range entries {
			if c, ok := m.candidate(entry); ok {
				log.Debugw("discovered device", "name", c.Name, "addr", c.Addr)
				out = append(out, c)
			}
		}
		found <- out
	}()

	err := mdns.Query(params)
	close(entries)
	out := <-found
	if err != nil {
		return out, fmt.Errorf("mdns query %s: %w", params.Service, err)
	}
	return out, nil
}

func (m MDNS) candidate(entry *mdns.ServiceEntry) (Candidate, bool) {
	var ip net.IP
	switch {
	case entry.AddrV4 != nil:
		ip = entry.AddrV4
	case entry.AddrV6 != nil:
		ip = entry.AddrV6
	default:
		return Candidate{}, false
	}

	port := CLIPort
	if m.Port > 0 {
		port = m.Port
	}
	if m.UseAnnouncedPort && entry.Port > 0 {
		port = entry.Port
	}

	return Candidate{
		Name:   entry.Name,
		Addr:   net.JoinHostPort(ip.String(), strconv.Itoa(port)),
		Source: "mdns",
	}, true
}

func (m MDNS) service() string {
	if m.Service != "" {
		return m.Service
	}
	return ServiceType
}

func (m MDNS) domain() string {
	if m.Domain != "" {
		return m.Domain
	}
	return "local"
}

func (m MDNS) queryTimeout(ctx context.Context) time.Duration {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}
	return timeout
}

// Advertisement is a running mDNS responder
type Advertisement struct {
	server *mdns.Server
}

// Shutdown stops answering queries
func (a *Advertisement) Shutdown() error {
	return a.server.Shutdown()
}

// Advertise announces a device named name on port until ctx ends or
// Shutdown is called. Used to make simulated devices discoverable.
func Advertise(ctx context.Context, name string, port int) (*Advertisement, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(name, ServiceType, "", "", port, ips, []string{"model=heos-go mock"})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	log.Infow("advertising device", "name", name, "port", port, "type", ServiceType)

	ad := &Advertisement{server: server}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown()
	}()
	return ad, nil
}

// localIPs returns the non-loopback IPv4 addresses of interfaces that are up
func localIPs() ([]net.IP, error) {
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
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
