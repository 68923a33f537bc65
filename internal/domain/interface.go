package domain

import "strings"

// InterfaceRecord is one data row parsed from tabular device output
type InterfaceRecord struct {
	Index  int               `json:"index"`
	Flags  string            `json:"flags"`
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Values map[string]string `json:"values,omitempty"` // every declared column, keyed lower-case
}

// HasFlag reports whether the single-letter flag code is set
func (r InterfaceRecord) HasFlag(code rune) bool {
	return strings.ContainsRune(r.Flags, code)
}

// Value returns the value captured for a declared column
func (r InterfaceRecord) Value(column string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[strings.ToLower(column)]
}
