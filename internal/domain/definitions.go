package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Definitions is the full declared state: address lists, rules and the
// device groups they deploy to. Slice order is declaration order.
type Definitions struct {
	AddressLists []AddressList  `json:"address_lists"`
	Rules        []FirewallRule `json:"rules"`
	Groups       []DeviceGroup  `json:"groups"`
}

// Check validates every definition and cross-reference. It returns all
// problems found rather than stopping at the first.
func (d *Definitions) Check() []error {
	var problems []error

	lists := make(map[string]bool, len(d.AddressLists))
	for i := range d.AddressLists {
		list := &d.AddressLists[i]
		if err := list.Validate(); err != nil {
			problems = append(problems, err)
		} else if hasSpace(list.Name) {
			problems = append(problems, fmt.Errorf("address list %q: name contains whitespace", list.Name))
		} else if lists[list.Name] {
			problems = append(problems, fmt.Errorf("address list %s: declared twice", list.Name))
		}
		lists[list.Name] = true
	}

	groups := make(map[string]bool, len(d.Groups))
	for i := range d.Groups {
		problems = append(problems, checkGroup(&d.Groups[i], groups)...)
		groups[d.Groups[i].ID] = true
	}

	rules := make(map[string]bool, len(d.Rules))
	for i := range d.Rules {
		rule := &d.Rules[i]
		if err := rule.Validate(); err != nil {
			problems = append(problems, err)
			continue
		}
		if rules[rule.ID] {
			problems = append(problems, &ValidationError{RuleID: rule.ID, Field: "id", Reason: "declared twice"})
		}
		rules[rule.ID] = true
		problems = append(problems, checkRuleTokens(rule)...)

		if rule.Source.AddressList != "" && !lists[rule.Source.AddressList] {
			problems = append(problems, &ValidationError{RuleID: rule.ID, Field: "source",
				Reason: fmt.Sprintf("address list %q is not defined", rule.Source.AddressList)})
		}
		if rule.Destination.AddressList != "" && !lists[rule.Destination.AddressList] {
			problems = append(problems, &ValidationError{RuleID: rule.ID, Field: "destination",
				Reason: fmt.Sprintf("address list %q is not defined", rule.Destination.AddressList)})
		}
		if rule.GroupID != "" && !groups[rule.GroupID] {
			problems = append(problems, &ValidationError{RuleID: rule.ID, Field: "group",
				Reason: fmt.Sprintf("device group %q is not defined", rule.GroupID)})
		}
	}

	return problems
}

// checkRuleTokens rejects whitespace in values rendered unquoted
func checkRuleTokens(rule *FirewallRule) []error {
	var problems []error
	for _, f := range []struct{ field, value string }{
		{"source", rule.Source.Address},
		{"destination", rule.Destination.Address},
		{"protocol", rule.Protocol},
		{"port", rule.Port},
	} {
		if hasSpace(f.value) {
			problems = append(problems, &ValidationError{RuleID: rule.ID, Field: f.field,
				Reason: fmt.Sprintf("%q contains whitespace", f.value)})
		}
	}
	return problems
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

func checkGroup(g *DeviceGroup, seen map[string]bool) []error {
	var problems []error
	if g.ID == "" {
		return []error{fmt.Errorf("device group ID is required")}
	}
	if seen[g.ID] {
		problems = append(problems, fmt.Errorf("device group %s: declared twice", g.ID))
	}

	devices := make(map[string]bool, len(g.Devices))
	for _, d := range g.Devices {
		switch {
		case d.ID == "":
			problems = append(problems, fmt.Errorf("device group %s: device ID is required", g.ID))
		case d.Address == "":
			problems = append(problems, fmt.Errorf("device group %s: device %s has no address", g.ID, d.ID))
		case devices[d.ID]:
			problems = append(problems, fmt.Errorf("device group %s: device %s listed twice", g.ID, d.ID))
		}
		devices[d.ID] = true
	}
	return problems
}

// Group returns the group with the given ID
func (d *Definitions) Group(id string) (*DeviceGroup, bool) {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return &d.Groups[i], true
		}
	}
	return nil, false
}

// RulesForGroup returns the rules targeting groupID, in declaration order
func (d *Definitions) RulesForGroup(groupID string) []FirewallRule {
	var rules []FirewallRule
	for _, r := range d.Rules {
		if r.GroupID == groupID {
			rules = append(rules, r)
		}
	}
	return rules
}

// ListsReferencedBy returns the address lists named by rules, in list
// declaration order
func ListsReferencedBy(rules []FirewallRule, lists []AddressList) []AddressList {
	wanted := make(map[string]bool)
	for i := range rules {
		for _, name := range rules[i].ReferencedLists() {
			wanted[name] = true
		}
	}

	var out []AddressList
	for _, l := range lists {
		if wanted[l.Name] {
			out = append(out, l)
		}
	}
	return out
}
