package options

import (
	"path/filepath"

	"github.com/nvandessel/simwrap/internal/constants"
)

// Defaults holds every value used when an option is absent. It is built once
// at process start and shared read-only; nothing in the resolver reads
// package-level state for defaults.
type Defaults struct {
	WorkDir        string
	CRS            string
	Network        string
	Plans          string
	StartTime      string
	EndTime        string
	IterationsMax  int
	Output         string
	NetworkClean   bool
	ConfigFileName string

	// CarSpeedEstimateKmh is the reference speed used to derive a teleported
	// pt speed when a template leaves it unset.
	CarSpeedEstimateKmh float64
}

// NewDefaults returns the defaults for a run started in workDir.
func NewDefaults(workDir string) *Defaults {
	return &Defaults{
		WorkDir:             workDir,
		CRS:                 "EPSG:4326",
		Network:             filepath.Join(workDir, "network.xml"),
		Plans:               filepath.Join(workDir, "plans.xml"),
		StartTime:           "00:00:00",
		EndTime:             "00:00:00",
		IterationsMax:       10,
		Output:              filepath.Join(workDir, "output"),
		NetworkClean:        false,
		ConfigFileName:      constants.ConfigFileName,
		CarSpeedEstimateKmh: constants.CarTeleportedSpeedEstimateKmh,
	}
}

// OutputDir returns the cleaned --output value, or the default.
func (d *Defaults) OutputDir(m Map) string {
	if v, ok := m.Value(KeyOutput); ok {
		return filepath.Clean(v)
	}
	return d.Output
}

// NetworkPath returns the cleaned --network value, or the default.
func (d *Defaults) NetworkPath(m Map) string {
	if v, ok := m.Value(KeyNetwork); ok {
		return filepath.Clean(v)
	}
	return d.Network
}

// PlansPath returns the cleaned --plans value, or the default.
func (d *Defaults) PlansPath(m Map) string {
	if v, ok := m.Value(KeyPlans); ok {
		return filepath.Clean(v)
	}
	return d.Plans
}

// ConfigPath returns where a generated configuration is written.
func (d *Defaults) ConfigPath(m Map) string {
	return filepath.Join(d.OutputDir(m), d.ConfigFileName)
}
