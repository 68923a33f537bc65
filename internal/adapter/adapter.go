package adapter

import (
	"context"

	"fleetwall/internal/domain"
)

// Transport delivers commands to devices
type Transport interface {
	// Send runs one command on the device and returns its raw output.
	// Unreachable devices yield *domain.ConnectionError, rejected commands
	// yield *domain.CommandError.
	Send(ctx context.Context, device domain.Device, command string) (string, error)

	// Close releases any cached connections
	Close() error
}

// Prober checks whether a host accepts connections on a port
type Prober interface {
	// Name returns the probe method identifier
	Name() string

	// Probe returns nil if the host answered
	Probe(ctx context.Context, host string, port int) error
}
