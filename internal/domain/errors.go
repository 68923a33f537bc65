package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ValidationError reports a rule definition that cannot be rendered
type ValidationError struct {
	RuleID string `json:"rule_id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %s: invalid %s: %s", e.RuleID, e.Field, e.Reason)
}

// CommandError reports a command a device rejected or timed out on
type CommandError struct {
	DeviceID string
	Command  string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device %s: command %q failed: %v", e.DeviceID, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a device the transport could not reach at all
type ConnectionError struct {
	DeviceID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device %s: unreachable: %v", e.DeviceID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseSkip describes one line of tabular output that was not interpreted
type ParseSkip struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}
