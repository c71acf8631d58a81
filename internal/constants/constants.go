// Package constants provides named constants used throughout the simwrap codebase.
// This centralizes magic numbers and file-name conventions in one place.
package constants

// Sampling constants
const (
	// SampleTolerance is the tolerance under which a sample fraction is
	// considered indistinguishable from 1 (no down-sampling).
	SampleTolerance = 1e-3

	// SampleTagFormat formats the fraction inserted into a down-sampled
	// population file name, e.g. plans_sample_0.5000.xml.
	SampleTagFormat = "_sample_%.4f"

	// SampleMasterSeed is mixed with the fraction tag to seed the sampling
	// stream, so the same fraction always keeps the same persons.
	SampleMasterSeed uint64 = 12345
)

// Network cleaning constants
const (
	// CleanedSuffix is inserted before the extension of a cleaned network file.
	CleanedSuffix = "_cleaned"
)

// Speed constants
const (
	// CarTeleportedSpeedEstimateKmh is the reference car speed used to derive a
	// teleported pt speed when a template does not set one.
	CarTeleportedSpeedEstimateKmh = 60.0

	// KmhToMps converts km/h to m/s.
	KmhToMps = 1.0 / 3.6
)

// File name conventions
const (
	// ConfigFileName is the name of a generated configuration file.
	ConfigFileName = "config.xml"

	// DecisionLogName is the JSONL decision trace written into the output directory.
	DecisionLogName = "decisions.jsonl"

	// StateDirName is the per-user directory holding settings and the run ledger.
	StateDirName = ".simwrap"
)
