package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nvandessel/simwrap/internal/options"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

// errRunFailed marks an error that was already logged at ERROR level.
var errRunFailed = errors.New("run failed")

func main() {
	if err := newRootCmd(os.Args[1:]).Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command tree for args.
func newRootCmd(args []string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simwrap",
		Short: "Resolve and run traffic simulation configurations",
		Long: `simwrap resolves partially specified options into a complete engine
configuration, prepares derived inputs (population samples, cleaned
networks) and dispatches the run.

Examples:
  simwrap --type default_config --output out
  simwrap --type config --modes car_sim_pt_teleport --pt-stops-csv stops.csv
  simwrap --type simulation --network net.xml.gz --plans plans.xml.gz --plans_sample 0.1
  simwrap --type simulation --config base.xml --override_config a.xml,b.xml`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, args)
		},
	}
	rootCmd.SetArgs(args)

	rootCmd.SetGlobalNormalizationFunc(lowerCaseFlags)

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (default from settings)")

	// Run options
	for _, opt := range options.Registry() {
		rootCmd.Flags().String(opt.Key, "", fmt.Sprintf("%s (%s)", opt.Help, opt.Kind))
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunsCmd(),
		newTemplateCmd(),
		newSettingsCmd(),
	)

	return rootCmd
}

// lowerCaseFlags makes option names case-insensitive.
func lowerCaseFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ToLower(name))
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
