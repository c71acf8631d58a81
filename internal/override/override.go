// Package override resolves a configuration from user files: a base
// configuration followed by override files applied in the order given.
package override

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

// Selected reports whether a run resolves from files instead of layering
// options onto a template. It does for simulation runs given --config.
func Selected(rt options.RunType, m options.Map) bool {
	return rt == options.RunSimulation && m.Has(options.KeyConfig)
}

// Files returns the base configuration and the override files in order.
// --override_config takes a comma separated list.
func Files(m options.Map) (base string, overrides []string) {
	base, _ = m.Value(options.KeyConfig)
	if base != "" {
		base = filepath.Clean(base)
	}
	raw, _ := m.Value(options.KeyOverrideConfig)
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			overrides = append(overrides, filepath.Clean(f))
		}
	}
	return base, overrides
}

// Load reads base and applies each override in order, so the last file that
// defines a setting wins. Any missing, unreadable or malformed file fails the
// whole load. Relative input files are resolved against the directory of
// base, the way the engine reads them.
func Load(base string, overrides ...string) (*simconfig.Tree, error) {
	t, err := simconfig.Load(base)
	if err != nil {
		return nil, fmt.Errorf("loading base configuration: %w", err)
	}
	for _, path := range overrides {
		if err := simconfig.LoadInto(t, path); err != nil {
			return nil, fmt.Errorf("applying override configuration: %w", err)
		}
	}
	t.ResolveInputPaths(filepath.Dir(base))
	return t, nil
}

// Resolver resolves configurations from the files named by --config and
// --override_config.
type Resolver struct {
	Logger *slog.Logger
}

// Resolve implements the layering Resolver contract for file-based runs.
func (r Resolver) Resolve(m options.Map) (*simconfig.Tree, error) {
	logger := logging.OrDiscard(r.Logger)
	base, overrides := Files(m)
	if base == "" {
		return nil, fmt.Errorf("loading base configuration: %s is empty", options.FlagName(options.KeyConfig))
	}
	logger.Info("configuration file", "path", base)
	for _, o := range overrides {
		logger.Info("override configuration file", "path", o)
	}
	return Load(base, overrides...)
}
