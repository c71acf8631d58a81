// Package dispatch runs the operation selected by --type.
//
// The run type is parsed before anything else, so a missing or unknown type
// fails without touching the filesystem. Exactly one of the three branches
// runs afterwards.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nvandessel/simwrap/internal/engine"
	"github.com/nvandessel/simwrap/internal/layering"
	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/network"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/override"
	"github.com/nvandessel/simwrap/internal/pathutil"
	"github.com/nvandessel/simwrap/internal/population"
	"github.com/nvandessel/simwrap/internal/simconfig"
	"github.com/nvandessel/simwrap/internal/store"
	"github.com/nvandessel/simwrap/internal/templates"
)

// Configuration sources recorded for a run.
const (
	SourceTemplate = "template"
	SourceFiles    = "files"
)

// simulationOnly are the options that configuration generation never reads.
var simulationOnly = []string{options.KeyConfig, options.KeyOverrideConfig, options.KeyNetworkClean}

// Ledger records runs. *store.Ledger implements it.
type Ledger interface {
	Begin(ctx context.Context, r store.Run) error
	Finish(ctx context.Context, r store.Run) error
}

var _ Ledger = (*store.Ledger)(nil)

// Dispatcher wires the resolver stages to the engine.
type Dispatcher struct {
	Engine    engine.Engine
	Templates templates.Selector
	Defaults  *options.Defaults

	// Ledger, when set, records every run that gets past type parsing.
	Ledger Ledger

	Logger *slog.Logger

	// LogLevel enables the decision log in the output directory at "debug"
	// or "trace".
	LogLevel string

	// RunID identifies the run; a random one is generated when empty.
	RunID string
}

// Result describes what a run produced.
type Result struct {
	RunID          string
	Type           options.RunType
	Mode           options.Mode
	Source         string
	ConfigPath     string
	DerivedPlans   string
	CleanedNetwork string
}

// Run dispatches m. Every returned error is fatal for the run; soft problems
// with individual options are only logged.
func (d *Dispatcher) Run(ctx context.Context, m options.Map) (Result, error) {
	rt, err := options.ParseRunType(m)
	if err != nil {
		return Result{}, err
	}

	logger := logging.OrDiscard(d.Logger)
	res := Result{RunID: d.RunID, Type: rt}
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}
	logger = logger.With("run_id", res.RunID)
	logger.Info("run type", "type", rt.String())

	for _, k := range options.Unknown(m) {
		logger.Warn("unknown option ignored", "option", options.FlagName(k))
	}
	if rt.IsConfigGeneration() {
		for _, k := range simulationOnly {
			if m.Has(k) {
				logger.Warn("option only applies to simulation runs, ignored",
					"option", options.FlagName(k), "type", rt.String())
			}
		}
	}

	outputDir := d.defaults().OutputDir(m)
	decisions := logging.NewDecisionLogger(outputDir, d.LogLevel, res.RunID)
	defer decisions.Close()

	d.begin(ctx, logger, store.Run{ID: res.RunID, Type: rt.String(), OutputDir: outputDir})

	r := &run{d: d, m: m, res: &res, outputDir: outputDir, logger: logger, decisions: decisions}
	switch rt {
	case options.GenerateDefaultTemplate:
		err = r.defaultTemplate(ctx)
	case options.GenerateTailoredConfig:
		err = r.tailoredConfig(ctx)
	case options.RunSimulation:
		err = r.simulation(ctx)
	}

	decisions.Log(map[string]any{
		"event":  "run_finished",
		"type":   rt.String(),
		"config": res.ConfigPath,
		"error":  errString(err),
	})
	d.finish(logger, res, err)
	if err != nil {
		return res, err
	}
	logger.Info("run finished", "type", rt.String(), "config", res.ConfigPath)
	return res, nil
}

func (d *Dispatcher) defaults() *options.Defaults {
	if d.Defaults == nil {
		return options.NewDefaults(".")
	}
	return d.Defaults
}

// begin and finish record the run. Ledger failures never fail the run.
func (d *Dispatcher) begin(ctx context.Context, logger *slog.Logger, r store.Run) {
	if d.Ledger == nil {
		return
	}
	if err := d.Ledger.Begin(ctx, r); err != nil {
		logger.Warn("failed to record run in ledger", "error", err)
	}
}

func (d *Dispatcher) finish(logger *slog.Logger, res Result, runErr error) {
	if d.Ledger == nil {
		return
	}
	r := store.Run{
		ID:             res.RunID,
		Mode:           modeValue(res.Mode),
		Source:         res.Source,
		ConfigPath:     res.ConfigPath,
		DerivedPlans:   res.DerivedPlans,
		CleanedNetwork: res.CleanedNetwork,
		Status:         store.StatusSucceeded,
	}
	if runErr != nil {
		r.Status = store.StatusFailed
		r.Error = runErr.Error()
	}
	// the run context may already be cancelled; the ledger update must still land
	if err := d.Ledger.Finish(context.Background(), r); err != nil {
		logger.Warn("failed to update run in ledger", "error", err)
	}
}

func modeValue(m options.Mode) string {
	if m == options.ModeNone {
		return ""
	}
	return m.Value()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// run holds the state of one dispatched run.
type run struct {
	d         *Dispatcher
	m         options.Map
	res       *Result
	outputDir string
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

func (r *run) layering() *layering.Engine {
	return &layering.Engine{
		Templates: r.d.Templates,
		Defaults:  r.d.defaults(),
		Logger:    r.logger,
		Decisions: r.decisions,
	}
}

func (r *run) engine() (engine.Engine, error) {
	if r.d.Engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", engine.ErrEngineUnavailable)
	}
	return r.d.Engine, nil
}

func (r *run) defaultTemplate(ctx context.Context) error {
	eng, err := r.engine()
	if err != nil {
		return err
	}
	path := r.d.defaults().ConfigPath(r.m)
	if err := eng.WriteDefaultTemplate(ctx, path); err != nil {
		return fmt.Errorf("writing default configuration: %w", err)
	}
	r.res.ConfigPath = path
	r.logger.Info("wrote default configuration", "path", path)
	return nil
}

// sample creates the down-sampled population when --plans_sample asks for
// one. The returned Artifact is zero when no sampling happened. When tree is
// set and --plans is not, the population it names is sampled.
func (r *run) sample(ctx context.Context, tree *simconfig.Tree) (population.Artifact, error) {
	req, ok := population.NewRequest(r.m, r.d.defaults(), r.logger)
	if !ok {
		return population.Artifact{}, nil
	}
	if tree != nil && !r.m.Has(options.KeyPlans) {
		if v, _ := tree.Get(simconfig.ModulePlans, "inputPlansFile"); v != "" {
			req.Source = v
		}
	}
	art, err := population.Sample(ctx, req, r.outputDir)
	if err != nil {
		return population.Artifact{}, fmt.Errorf("down-sampling population: %w", err)
	}
	r.res.DerivedPlans = art.Path
	r.logger.Info("derived down-sampled population", "path", art.Path,
		"fraction", art.Fraction, "kept", art.Kept, "total", art.Total)
	r.decisions.Log(map[string]any{
		"event":    "population_sampled",
		"source":   req.Source,
		"path":     art.Path,
		"fraction": art.Fraction,
		"kept":     art.Kept,
		"total":    art.Total,
	})
	return art, nil
}

// removeArtifact deletes a derived population, but only inside the output
// directory.
func (r *run) removeArtifact(art population.Artifact) {
	if art.Path == "" {
		return
	}
	if err := pathutil.ValidatePath(art.Path, []string{r.outputDir}); err != nil {
		r.logger.Warn("derived population outside output directory, not removed", "path", art.Path, "error", err)
		return
	}
	if err := art.Remove(); err != nil {
		r.logger.Warn("failed to remove derived population", "path", art.Path, "error", err)
		return
	}
	r.logger.Info("removed derived population", "path", art.Path)
}

func (r *run) tailoredConfig(ctx context.Context) error {
	art, err := r.sample(ctx, nil)
	if err != nil {
		return err
	}
	m := r.m
	if art.Path != "" {
		m = m.WithPlans(art.Path)
	}

	r.res.Mode = options.ResolveMode(m, nil)
	r.res.Source = SourceTemplate
	tree, err := r.layering().Resolve(m)
	if err != nil {
		// a failed generation leaves nothing behind
		r.removeArtifact(art)
		r.res.DerivedPlans = ""
		return fmt.Errorf("resolving configuration: %w", err)
	}

	path := r.d.defaults().ConfigPath(m)
	if err := simconfig.Save(path, tree); err != nil {
		r.removeArtifact(art)
		r.res.DerivedPlans = ""
		return fmt.Errorf("writing configuration: %w", err)
	}
	r.res.ConfigPath = path
	r.logger.Info("wrote configuration", "path", path)
	if art.Path != "" {
		r.logger.Info("configuration uses derived population, kept for later runs", "path", art.Path)
	}
	return nil
}

func (r *run) simulation(ctx context.Context) error {
	eng, err := r.engine()
	if err != nil {
		return err
	}

	// a file-based configuration is loaded first: it names the population
	var tree *simconfig.Tree
	if override.Selected(options.RunSimulation, r.m) {
		if tree, err = r.resolveFiles(); err != nil {
			return err
		}
	}

	art, err := r.sample(ctx, tree)
	if err != nil {
		return err
	}
	defer r.removeArtifact(art)

	if tree == nil {
		if tree, err = r.resolveTemplate(art); err != nil {
			return err
		}
	} else if art.Path != "" {
		tree.Set(simconfig.ModulePlans, "inputPlansFile", art.Path)
		r.logger.Info("setting plans", "value", art.Path, "source", "derived population")
	}

	scenario, err := eng.LoadScenario(ctx, tree)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}
	r.res.ConfigPath = scenario.ConfigPath()

	if network.ParseCleanFlag(r.m, r.logger) {
		path, st, err := network.CleanAndPersist(scenario.Network(), scenario.NetworkPath(), nil, r.logger)
		if err != nil {
			return fmt.Errorf("cleaning network: %w", err)
		}
		if err := scenario.ReplaceNetwork(path); err != nil {
			return fmt.Errorf("cleaning network: %w", err)
		}
		r.res.CleanedNetwork = path
		r.decisions.Log(map[string]any{
			"event":        "network_cleaned",
			"path":         path,
			"nodes_before": st.NodesBefore,
			"nodes_after":  st.NodesAfter,
			"links_before": st.LinksBefore,
			"links_after":  st.LinksAfter,
		})
	}

	if err := scenario.Run(ctx); err != nil {
		return fmt.Errorf("running simulation: %w", err)
	}
	return nil
}

// resolveFiles loads the configuration named by --config and
// --override_config.
func (r *run) resolveFiles() (*simconfig.Tree, error) {
	r.res.Source = SourceFiles
	tree, err := override.Resolver{Logger: r.logger}.Resolve(r.m)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}
	return tree, nil
}

// resolveTemplate layers the options onto the mode's template. A derived
// population replaces the plans option.
func (r *run) resolveTemplate(art population.Artifact) (*simconfig.Tree, error) {
	m := r.m
	if art.Path != "" {
		m = m.WithPlans(art.Path)
	}
	r.res.Mode = options.ResolveMode(m, nil)
	r.res.Source = SourceTemplate
	tree, err := r.layering().Resolve(m)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}
	return tree, nil
}
