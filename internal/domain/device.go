package domain

import (
	"net"
	"strconv"
)

// Device is an opaque connection descriptor for one managed box.
// The deployment engine only passes it to the transport.
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
	Port    int    `json:"port,omitempty"`
	Family  string `json:"family,omitempty"` // firmware family, selects parser options
}

// Label returns the human-facing device name
func (d Device) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// HostPort joins the address with the given default port when none is set
func (d Device) HostPort(defaultPort int) string {
	port := d.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(d.Address, strconv.Itoa(port))
}

// DeviceGroup is a named set of devices receiving identical deployments.
// Device order is the deployment and report order.
type DeviceGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

// Device returns the member with the given ID
func (g *DeviceGroup) Device(id string) (Device, bool) {
	for _, d := range g.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
