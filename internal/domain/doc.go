// Package domain defines the core types for fleetwall's provisioning engine.
//
// This package contains the declarative firewall definitions, the device
// inventory model, parsed interface records and deployment reports.
//
// # Definitions
//
// AddressList is a named, ordered set of IP/CIDR entries. FirewallRule
// describes one filter rule whose source and destination are each a literal
// address, a reference to an AddressList, or unset ("any").
//
// Rules are validated with FirewallRule.Validate before any command is
// generated. Validation is pure and reports a *ValidationError.
//
// # Inventory
//
// DeviceGroup is an ordered set of Device descriptors. Devices are opaque to
// the engine; only the transport interprets their address and port.
//
// # Deployment
//
// GroupDeploymentReport aggregates DeploymentResult values per device.
// CommandError and ConnectionError both curtail only the affected device's
// remaining sequence.
//
// # Design Principles
//
// - No database or external dependencies
// - Typed string enumerations for chains, actions and outcomes
// - Errors are values inspected with errors.As
package domain
