package options

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingRunType reports that --type was not supplied.
	ErrMissingRunType = errors.New("missing run type (--type)")

	// ErrUnknownRunType reports a --type value outside the closed set.
	ErrUnknownRunType = errors.New("unknown run type")
)

// RunType is the top-level operation requested by the user.
type RunType int

const (
	// GenerateDefaultTemplate writes the engine's own full default configuration.
	GenerateDefaultTemplate RunType = iota + 1
	// GenerateTailoredConfig writes a configuration resolved from the options.
	GenerateTailoredConfig
	// RunSimulation resolves a configuration and runs the engine on it.
	RunSimulation
)

// Run type values accepted for --type.
const (
	TypeDefaultConfig = "default_config"
	TypeConfig        = "config"
	TypeSimulation    = "simulation"
)

// ParseRunType reads --type from m. It touches nothing but m, so callers can
// run it before any other work.
func ParseRunType(m Map) (RunType, error) {
	v, ok := m.Value(KeyType)
	if !ok {
		return 0, ErrMissingRunType
	}
	switch strings.ToLower(v) {
	case TypeDefaultConfig:
		return GenerateDefaultTemplate, nil
	case TypeConfig:
		return GenerateTailoredConfig, nil
	case TypeSimulation:
		return RunSimulation, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid: %s, %s, %s)", ErrUnknownRunType, v,
			TypeDefaultConfig, TypeConfig, TypeSimulation)
	}
}

// IsConfigGeneration reports whether the run only writes a configuration.
func (rt RunType) IsConfigGeneration() bool {
	return rt == GenerateDefaultTemplate || rt == GenerateTailoredConfig
}

// String returns the --type value for rt.
func (rt RunType) String() string {
	switch rt {
	case GenerateDefaultTemplate:
		return TypeDefaultConfig
	case GenerateTailoredConfig:
		return TypeConfig
	case RunSimulation:
		return TypeSimulation
	default:
		return "unknown"
	}
}
