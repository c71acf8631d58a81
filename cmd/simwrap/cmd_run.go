package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/simwrap/internal/config"
	"github.com/nvandessel/simwrap/internal/dispatch"
	"github.com/nvandessel/simwrap/internal/engine"
	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/store"
	"github.com/nvandessel/simwrap/internal/templates"
)

// runPipeline is the root command: resolve the options and dispatch the run.
// rawArgs are the command line arguments before flag parsing.
func runPipeline(cmd *cobra.Command, rawArgs []string) error {
	flagLevel, _ := cmd.Flags().GetString("log-level")
	m := collectOptions(cmd, rawArgs)

	// type errors come before anything touches the filesystem, settings
	// included
	if _, err := options.ParseRunType(m); err != nil {
		level := flagLevel
		if level == "" {
			level = config.Default().Logging.Level
		}
		logging.NewLogger(level, cmd.ErrOrStderr()).Error("run failed", "error", err)
		return errRunFailed
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	level := cfg.Logging.Level
	if flagLevel != "" {
		level = flagLevel
	}
	logger := logging.NewLogger(level, cmd.ErrOrStderr())

	ctx, cancel := withSignals(cmd.Context())
	defer cancel()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	runID := uuid.New().String()
	d := &dispatch.Dispatcher{
		Engine:    engine.NewMATSim(cfg.Engine, runID, logger),
		Templates: templates.Selector{Dir: cfg.Templates.Dir},
		Defaults:  options.NewDefaults(wd),
		Logger:    logger,
		LogLevel:  level,
		RunID:     runID,
	}
	if ledger := openLedger(cfg, logger); ledger != nil {
		defer ledger.Close()
		d.Ledger = ledger
	}

	res, err := d.Run(ctx, m)
	if err != nil {
		logger.Error("run failed", "error", err)
		return errRunFailed
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		mode := ""
		if res.Mode != options.ModeNone {
			mode = res.Mode.Value()
		}
		json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
			"run_id":          res.RunID,
			"type":            res.Type.String(),
			"mode":            mode,
			"source":          res.Source,
			"config":          res.ConfigPath,
			"derived_plans":   res.DerivedPlans,
			"cleaned_network": res.CleanedNetwork,
		})
	}
	return nil
}

// collectOptions builds the option map from the flags the user set. Options
// outside the registry are dropped by flag parsing, so they are recovered
// from the raw arguments and passed on to be reported.
func collectOptions(cmd *cobra.Command, rawArgs []string) options.Map {
	raw := make(map[string]string)
	for _, opt := range options.Registry() {
		f := cmd.Flags().Lookup(opt.Key)
		if f != nil && f.Changed {
			raw[opt.Key] = f.Value.String()
		}
	}
	if all, err := options.FromArgs(stripGlobalFlags(rawArgs)); err == nil {
		for _, k := range options.Unknown(all) {
			if cmd.Flag(k) != nil {
				continue
			}
			raw[k] = all.Get(k)
		}
	}
	return options.New(raw)
}

// stripGlobalFlags drops the boolean flags so that they do not swallow the
// next option as their value.
func stripGlobalFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		name, _, _ := strings.Cut(strings.ToLower(a), "=")
		if name == "--json" || name == "--help" || name == "-h" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// openLedger opens the run ledger. A ledger that cannot be opened disables
// recording for this run.
func openLedger(cfg *config.SimwrapConfig, logger *slog.Logger) *store.Ledger {
	if !cfg.Ledger.Enabled {
		return nil
	}
	dir, err := cfg.LedgerDir()
	if err != nil {
		logger.Warn("run ledger disabled", "error", err)
		return nil
	}
	l, err := store.Open(dir)
	if err != nil {
		logger.Warn("run ledger disabled", "error", err)
		return nil
	}
	return l
}
