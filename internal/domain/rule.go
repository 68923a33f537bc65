package domain

import (
	"fmt"
	"strings"
)

// Chain is the traffic-processing stage a firewall rule attaches to
type Chain string

const (
	ChainInput       Chain = "input"
	ChainForward     Chain = "forward"
	ChainOutput      Chain = "output"
	ChainPrerouting  Chain = "prerouting"
	ChainPostrouting Chain = "postrouting"
)

// Valid reports whether the chain is one of the recognized values
func (c Chain) Valid() bool {
	switch c {
	case ChainInput, ChainForward, ChainOutput, ChainPrerouting, ChainPostrouting:
		return true
	}
	return false
}

// Action is what the device does with traffic matching a rule
type Action string

const (
	ActionAccept      Action = "accept"
	ActionDrop        Action = "drop"
	ActionReject      Action = "reject"
	ActionLog         Action = "log"
	ActionPassthrough Action = "passthrough"
	ActionReturn      Action = "return"
	ActionTarpit      Action = "tarpit"
	ActionFasttrack   Action = "fasttrack-connection"
)

// Valid reports whether the action is one of the recognized values
func (a Action) Valid() bool {
	switch a {
	case ActionAccept, ActionDrop, ActionReject, ActionLog,
		ActionPassthrough, ActionReturn, ActionTarpit, ActionFasttrack:
		return true
	}
	return false
}

// AddressSpec selects one side (source or destination) of a rule.
// At most one of Address and AddressList may be set; neither means "any".
type AddressSpec struct {
	Address     string `json:"address,omitempty" yaml:"address,omitempty"`
	AddressList string `json:"address_list,omitempty" yaml:"address_list,omitempty"`
}

// IsAny reports whether the side matches any address
func (s AddressSpec) IsAny() bool {
	return s.Address == "" && s.AddressList == ""
}

// FirewallRule is a declarative filter rule deployed to every device in a group
type FirewallRule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	GroupID     string      `json:"group_id"`
	Chain       Chain       `json:"chain"`
	Action      Action      `json:"action"`
	Source      AddressSpec `json:"source"`
	Destination AddressSpec `json:"destination"`
	Protocol    string      `json:"protocol,omitempty"`
	Port        string      `json:"port,omitempty"`
	Comment     string      `json:"comment,omitempty"`
}

// Validate checks the rule's enums and the per-side address exclusivity.
// It has no side effects and returns a *ValidationError on failure.
func (r *FirewallRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{RuleID: r.ID, Field: "id", Reason: "rule ID is required"}
	}
	if !r.Chain.Valid() {
		return &ValidationError{RuleID: r.ID, Field: "chain", Reason: fmt.Sprintf("unrecognized chain %q", r.Chain)}
	}
	if !r.Action.Valid() {
		return &ValidationError{RuleID: r.ID, Field: "action", Reason: fmt.Sprintf("unrecognized action %q", r.Action)}
	}
	if r.Source.Address != "" && r.Source.AddressList != "" {
		return &ValidationError{RuleID: r.ID, Field: "source", Reason: "address and address list are mutually exclusive"}
	}
	if r.Destination.Address != "" && r.Destination.AddressList != "" {
		return &ValidationError{RuleID: r.ID, Field: "destination", Reason: "address and address list are mutually exclusive"}
	}
	return nil
}

// ReferencedLists returns the address list names the rule depends on,
// source first
func (r *FirewallRule) ReferencedLists() []string {
	var names []string
	if r.Source.AddressList != "" {
		names = append(names, r.Source.AddressList)
	}
	if r.Destination.AddressList != "" && r.Destination.AddressList != r.Source.AddressList {
		names = append(names, r.Destination.AddressList)
	}
	return names
}
