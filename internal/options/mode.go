package options

import (
	"log/slog"
	"strings"
)

// Mode is the closed set of supported travel mode combinations.
type Mode int

const (
	// ModeNone is the result of an unrecognized --modes value. It is not an
	// error by itself; template selection rejects it.
	ModeNone Mode = iota
	// ModeCarOnly simulates cars only.
	ModeCarOnly
	// ModeCarTeleportedTransit simulates cars and teleports public transport.
	ModeCarTeleportedTransit
	// ModeCarSimulatedTransit simulates both cars and public transport. It is
	// recognized but has no template yet.
	ModeCarSimulatedTransit
)

// Mode values accepted for --modes.
const (
	ModesCarSim           = "car_sim"
	ModesCarSimPtTeleport = "car_sim_pt_teleport"
	ModesCarPtSim         = "car_pt_sim"
)

// ParseMode maps a --modes value to a Mode, ModeNone when unrecognized.
func ParseMode(v string) Mode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case ModesCarSim:
		return ModeCarOnly
	case ModesCarSimPtTeleport:
		return ModeCarTeleportedTransit
	case ModesCarPtSim:
		return ModeCarSimulatedTransit
	default:
		return ModeNone
	}
}

// ResolveMode derives the Mode from m. An absent key means ModeCarOnly. An
// unrecognized value yields ModeNone with a warning.
func ResolveMode(m Map, logger *slog.Logger) Mode {
	v, ok := m.Lookup(KeyModes)
	if !ok {
		return ModeCarOnly
	}
	mode := ParseMode(v)
	if mode == ModeNone && logger != nil {
		logger.Warn("unrecognized modes value", "value", v,
			"valid", []string{ModesCarSim, ModesCarSimPtTeleport, ModesCarPtSim})
	}
	return mode
}

// RequiresTeleportedTransit reports whether pt is routed by teleportation.
func (m Mode) RequiresTeleportedTransit() bool {
	return m == ModeCarTeleportedTransit
}

// Value returns the --modes value for m, "none" for ModeNone.
func (m Mode) Value() string {
	switch m {
	case ModeCarOnly:
		return ModesCarSim
	case ModeCarTeleportedTransit:
		return ModesCarSimPtTeleport
	case ModeCarSimulatedTransit:
		return ModesCarPtSim
	default:
		return "none"
	}
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return m.Value()
}
