package config

import "time"

// Posture selects how hard a deployment pushes on the fleet
type Posture string

const (
	PostureCautious   Posture = "cautious"   // one device at a time, always preflight
	PostureBalanced   Posture = "balanced"   // default
	PostureAggressive Posture = "aggressive" // wide fan-out, no preflight
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// DeployProfile is the effective deployment behavior
type DeployProfile struct {
	MaxInFlight    int           `yaml:"max_in_flight"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Preflight      bool          `yaml:"preflight"`
}

// PostureProfiles maps postures to their default deployment profiles
var PostureProfiles = map[Posture]DeployProfile{
	PostureCautious: {
		MaxInFlight:    1,
		CommandTimeout: 60 * time.Second,
		Preflight:      true,
	},
	PostureBalanced: {
		MaxInFlight:    5,
		CommandTimeout: 30 * time.Second,
		Preflight:      true,
	},
	PostureAggressive: {
		MaxInFlight:    25,
		CommandTimeout: 10 * time.Second,
		Preflight:      false,
	},
}

// GetProfile returns the deployment profile for a posture
func (p Posture) GetProfile() DeployProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
