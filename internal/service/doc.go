// Package service implements business logic for fleetwall.
//
// ProvisioningService sits between the HTTP handlers, the CLI and the
// watcher on one side and the repository, command generator and deployment
// coordinator on the other.
//
// # Imports
//
// Definitions are checked as a whole before anything is stored. One bad
// rule or address list rejects the import and leaves the stored state
// untouched.
//
// # Deployments
//
// A group deployment sends the group's rules, preceded by the address lists
// they reference, to every device in the group. Only one deployment per
// group runs at a time; a second request gets ErrDeploymentInProgress.
// Every finished deployment is stored as a report.
//
// # Event System
//
// The service publishes events via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE).
package service
