// Package command renders firewall definitions into RouterOS command strings.
//
// Output is deterministic: the same rule always yields the same bytes, so
// rendered commands can be diffed and replayed. Field order is fixed:
// chain, action, source, destination, protocol, port, comment.
//
// Comment values are wrapped in double quotes verbatim. Embedded quotes are
// not escaped; callers must sanitize comment text.
package command

import (
	"fmt"
	"strings"

	"fleetwall/internal/domain"
)

const (
	filterAddVerb      = "/ip firewall filter add"
	addressListAddVerb = "/ip firewall address-list add"
)

// Render produces the filter command for one rule. Lists referenced by the
// rule must be present in the registry.
func Render(rule *domain.FirewallRule, registry domain.AddressListRegistry) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	if err := checkList(rule.ID, "source", rule.Source, registry); err != nil {
		return "", err
	}
	if err := checkList(rule.ID, "destination", rule.Destination, registry); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(filterAddVerb)
	writeParam(&b, "chain", string(rule.Chain))
	writeParam(&b, "action", string(rule.Action))
	writeSide(&b, "src", rule.Source)
	writeSide(&b, "dst", rule.Destination)
	writeParam(&b, "protocol", rule.Protocol)
	writeParam(&b, "dst-port", rule.Port)
	if rule.Comment != "" {
		b.WriteString(` comment="` + rule.Comment + `"`)
	}
	return b.String(), nil
}

// RenderListEntry produces the command adding one entry to an address list.
// Re-adding an existing entry is not idempotent on the device.
func RenderListEntry(list *domain.AddressList, entry string) string {
	var b strings.Builder
	b.WriteString(addressListAddVerb)
	writeParam(&b, "list", list.Name)
	writeParam(&b, "address", entry)
	return b.String()
}

// RenderAddressList produces one command per entry, in declared order
func RenderAddressList(list *domain.AddressList) []string {
	commands := make([]string, 0, len(list.Entries))
	for _, entry := range list.Entries {
		commands = append(commands, RenderListEntry(list, entry))
	}
	return commands
}

func checkList(ruleID, field string, side domain.AddressSpec, registry domain.AddressListRegistry) error {
	if side.AddressList == "" {
		return nil
	}
	if _, ok := registry.Lookup(side.AddressList); !ok {
		return &domain.ValidationError{
			RuleID: ruleID,
			Field:  field,
			Reason: fmt.Sprintf("address list %q is not defined", side.AddressList),
		}
	}
	return nil
}

func writeSide(b *strings.Builder, prefix string, side domain.AddressSpec) {
	switch {
	case side.AddressList != "":
		writeParam(b, prefix+"-address-list", side.AddressList)
	case side.Address != "":
		writeParam(b, prefix+"-address", side.Address)
	}
}

func writeParam(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(value)
}
