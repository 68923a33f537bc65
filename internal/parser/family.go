package parser

import "strings"

// Known firmware families
const (
	FamilyRouterOS = "routeros"
	FamilyPlain    = "plain"
)

// routerOSFlagCodes covers the interface, address and route print legends
const routerOSFlagCodes = "DXRSCIHLABPE"

// DefaultFamilies returns the built-in per-family parsing policies
func DefaultFamilies() map[string]Options {
	return map[string]Options{
		FamilyRouterOS: {FlagCodes: routerOSFlagCodes, LearnFlags: true},
		FamilyPlain:    {},
	}
}

// Families resolves parser options by firmware family name
type Families struct {
	byName   map[string]Options
	fallback string
}

// NewFamilies merges overrides onto the built-in families. Unknown family
// names fall back to RouterOS.
func NewFamilies(overrides map[string]Options) *Families {
	byName := DefaultFamilies()
	for name, opts := range overrides {
		byName[strings.ToLower(name)] = opts
	}
	return &Families{byName: byName, fallback: FamilyRouterOS}
}

// Options returns the options for a family
func (f *Families) Options(family string) Options {
	if opts, ok := f.byName[strings.ToLower(family)]; ok {
		return opts
	}
	return f.byName[f.fallback]
}

// Parser returns a parser configured for a family
func (f *Families) Parser(family string) *Parser {
	return New(f.Options(family))
}
