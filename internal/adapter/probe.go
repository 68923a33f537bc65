package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
)

// TCPProber checks a port by completing a TCP handshake
type TCPProber struct {
	Timeout time.Duration
}

// Name returns the probe method identifier
func (p TCPProber) Name() string {
	return "tcp"
}

// Probe dials host:port and closes the connection immediately
func (p TCPProber) Probe(ctx context.Context, host string, port int) error {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// NmapProber checks a port with an nmap scan. Host discovery is skipped so
// devices that drop ICMP are still probed.
type NmapProber struct {
	Timeout time.Duration
}

// Name returns the probe method identifier
func (p NmapProber) Name() string {
	return "nmap"
}

// Available reports whether the nmap binary can be run
func (p NmapProber) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// Probe scans a single port on host
func (p NmapProber) Probe(ctx context.Context, host string, port int) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(host),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	result, _, err := scanner.Run()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return portOpen(result, port)
}

// portOpen reports whether the scan result shows port open on any host
func portOpen(result *nmap.Run, port int) error {
	if result == nil {
		return fmt.Errorf("nil scan result")
	}
	for _, host := range result.Hosts {
		for _, p := range host.Ports {
			if int(p.ID) != port {
				continue
			}
			if p.State.State == "open" {
				return nil
			}
			return fmt.Errorf("port %d is %s", port, p.State.State)
		}
	}
	return fmt.Errorf("port %d not reported", port)
}
