package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simwrap/internal/config"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/templates"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template [modes]",
		Short: "Print the base configuration template for a mode",
		Long: `Print the base configuration template that --type config and
--type simulation start from.

Examples:
  simwrap template                      # car_sim template
  simwrap template car_sim_pt_teleport  # car with teleported pt
  simwrap template --list               # available templates`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			list, _ := cmd.Flags().GetBool("list")

			if list {
				names, err := templates.Names()
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"templates": names})
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}

			mode := options.ModeCarOnly
			if len(args) == 1 {
				mode = options.ParseMode(args[0])
				if mode == options.ModeNone {
					return fmt.Errorf("unknown modes value %q (valid: %s, %s, %s)", args[0],
						options.ModesCarSim, options.ModesCarSimPtTeleport, options.ModesCarPtSim)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			sel := templates.Selector{Dir: cfg.Templates.Dir}
			data, err := sel.Raw(mode)
			if err != nil {
				return err
			}
			if jsonOut {
				src, _ := sel.Source(mode)
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"modes":    mode.Value(),
					"source":   src,
					"template": string(data),
				})
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().Bool("list", false, "List the built-in templates")
	return cmd
}
