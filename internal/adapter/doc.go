// Package adapter connects fleetwall to real devices.
//
// # Transport
//
// SSHTransport runs RouterOS commands over SSH using golang.org/x/crypto/ssh.
// One client is kept per device address and reused across commands. A dial
// or handshake failure is reported as *domain.ConnectionError; a command the
// device rejects is reported as *domain.CommandError with the device output.
//
// # Reachability
//
// Probers answer whether a device's management port is open. TCPProber dials
// the port directly; NmapProber runs an nmap port scan against the host.
//
// ReachabilityCache wraps a Prober and remembers each answer for a TTL so
// repeated deployments to the same group do not re-probe every device. It
// satisfies deploy.Preflight. Entries can be dropped per host with Invalidate
// or all at once with Clear.
package adapter
