// Package engine launches the external simulation engine.
//
// The resolver never links against the engine. It hands over a resolved
// configuration and the engine runs as a JVM subprocess.
package engine

import (
	"context"
	"errors"

	"github.com/nvandessel/simwrap/internal/network"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

// ErrEngineUnavailable reports that the engine cannot be launched, for
// example because java or the engine jar is missing.
var ErrEngineUnavailable = errors.New("simulation engine unavailable")

// Engine is what the dispatcher needs from the simulation engine.
type Engine interface {
	// WriteDefaultTemplate writes the engine's full default configuration.
	WriteDefaultTemplate(ctx context.Context, path string) error

	// LoadScenario prepares a run of t. The engine owns t afterwards.
	LoadScenario(ctx context.Context, t *simconfig.Tree) (Scenario, error)
}

// Scenario is a loaded, runnable simulation.
type Scenario interface {
	// Network returns the in-memory road network.
	Network() *network.Network

	// NetworkPath returns the network file the run reads.
	NetworkPath() string

	// ReplaceNetwork points the run at a different network file.
	ReplaceNetwork(path string) error

	// ConfigPath returns the configuration file handed to the engine.
	ConfigPath() string

	// Run runs the simulation to completion.
	Run(ctx context.Context) error
}
