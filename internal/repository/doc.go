// Package repository defines the data access interfaces for fleetwall.
//
// The Repository interface stores the declared state (address lists,
// firewall rules, device groups) and the reports of past deployments. The
// implementation lives in the sqlite subpackage.
//
// # Ordering
//
// Declaration order is significant: address-list entries, rules and group
// members are deployed in the order they were declared. Every table keeps a
// position column and every list query sorts by it.
//
// # Imports
//
// ReplaceDefinitions swaps the whole declared state in one transaction, so
// readers never observe a half-imported set of rules. Reports are kept
// across imports.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
