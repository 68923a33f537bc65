package domain

import (
	"fmt"
	"net"
	"strings"
)

// AddressList is a named, ordered collection of IP/CIDR entries.
// Entry order is preserved and duplicates are allowed.
type AddressList struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Entries     []string `json:"entries"`
}

// Validate checks the list name and that every entry is an IP or CIDR
func (l *AddressList) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("address list name is required")
	}
	for i, entry := range l.Entries {
		if !IsAddress(entry) {
			return fmt.Errorf("address list %s: entry %d (%q) is not an IP or CIDR", l.Name, i, entry)
		}
	}
	return nil
}

// IsAddress reports whether s is a plain IP address or a CIDR prefix
func IsAddress(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(s)
	return err == nil
}

// AddressListRegistry resolves address lists by name
type AddressListRegistry map[string]*AddressList

// NewAddressListRegistry indexes the given lists by name.
// A later list with a duplicate name replaces the earlier one.
func NewAddressListRegistry(lists []AddressList) AddressListRegistry {
	reg := make(AddressListRegistry, len(lists))
	for i := range lists {
		reg[lists[i].Name] = &lists[i]
	}
	return reg
}

// Lookup returns the named list, if known
func (r AddressListRegistry) Lookup(name string) (*AddressList, bool) {
	l, ok := r[name]
	return l, ok
}
