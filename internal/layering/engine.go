// Package layering resolves run options onto a base configuration template.
//
// Options are applied in a fixed order: the activity-type overlay first, then
// the unconditional settings, then modules that only some modes use. Later
// steps overwrite earlier ones, so an explicit option always beats anything
// the overlay happened to contain. Each setter fails soft: a bad value is
// reported as an Outcome and the remaining setters still run.
package layering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/simconfig"
	"github.com/nvandessel/simwrap/internal/templates"
)

// Resolver turns run options into a resolved configuration.
type Resolver interface {
	Resolve(m options.Map) (*simconfig.Tree, error)
}

// Engine is the template-and-layering Resolver.
type Engine struct {
	Templates templates.Selector
	Defaults  *options.Defaults
	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
}

var _ Resolver = (*Engine)(nil)

// setter applies one option. Setters never fail; they report an Outcome.
type setter func(e *Engine, t *simconfig.Tree, m options.Map) Outcome

// unconditional lists the scalar and path setters in application order.
var unconditional = []setter{
	setModes,
	setCRS,
	setNetwork,
	setNetworkCRS,
	setPlans,
	setPlansCRS,
	setStartTime,
	setEndTime,
	setFlowCapFactor,
	setStorageCapFactor,
	setLinkStats,
	setIterationsMax,
	setOutputDirectory,
}

// Resolve selects the template for the options' mode and layers the options
// onto it. Only template selection can fail.
func (e *Engine) Resolve(m options.Map) (*simconfig.Tree, error) {
	logger := logging.OrDiscard(e.Logger)
	mode := options.ResolveMode(m, logger)

	t, err := e.Templates.Select(mode)
	if err != nil {
		return nil, fmt.Errorf("selecting template: %w", err)
	}
	if src, err := e.Templates.Source(mode); err == nil {
		logger.Info("using configuration template", "mode", mode.String(), "source", src)
	}
	traceTree(logger, t)

	e.Apply(t, m, mode)
	return t, nil
}

// Apply layers m onto t in the fixed order and returns one Outcome per step.
func (e *Engine) Apply(t *simconfig.Tree, m options.Map, mode options.Mode) []Outcome {
	outcomes := make([]Outcome, 0, len(unconditional)+3)

	outcomes = append(outcomes, e.record(applyActivityOverlay(e, t, m)))

	for _, set := range unconditional {
		outcomes = append(outcomes, e.record(set(e, t, m)))
	}

	if mode.RequiresTeleportedTransit() {
		for _, o := range configurePtMatrixRouter(e, t, m) {
			outcomes = append(outcomes, e.record(o))
		}
	}
	for _, k := range options.Inapplicable(m, mode) {
		outcomes = append(outcomes, e.record(Outcome{
			Key:    k,
			Status: Ignored,
			Reason: fmt.Sprintf("option %s does not apply to modes %s", options.FlagName(k), mode),
		}))
	}

	return outcomes
}

func (e *Engine) defaults() *options.Defaults {
	if e.Defaults == nil {
		return options.NewDefaults(".")
	}
	return e.Defaults
}

func traceTree(logger *slog.Logger, t *simconfig.Tree) {
	ctx := context.Background()
	if !logger.Enabled(ctx, logging.LevelTrace) {
		return
	}
	for _, m := range t.Modules() {
		for _, p := range m.Params {
			logger.Log(ctx, logging.LevelTrace, "template param", "module", m.Name, "name", p.Name, "value", p.Value)
		}
	}
}
