package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/simwrap/internal/config"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage simwrap settings",
		Long: `View and modify simwrap settings.

Settings describe how simwrap runs the engine, not what a run resolves to.
They are stored in ~/.simwrap/config.yaml and can be overridden with
SIMWRAP_* environment variables.

Examples:
  simwrap settings list                          # Show all settings
  simwrap settings get engine.jar                # Get a specific setting
  simwrap settings set engine.jar /opt/matsim/matsim-15.0.jar
  simwrap settings set engine.heap 8g`,
	}

	cmd.AddCommand(
		newSettingsListCmd(),
		newSettingsGetCmd(),
		newSettingsSetCmd(),
	)

	return cmd
}

func newSettingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}
			fmt.Fprintln(out, "Settings (~/.simwrap/config.yaml):")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Engine:")
			fmt.Fprintf(out, "  engine.java:             %s\n", cfg.Engine.Java)
			fmt.Fprintf(out, "  engine.jar:              %s\n", valueOrDefault(cfg.Engine.Jar, "(not set)"))
			fmt.Fprintf(out, "  engine.heap:             %s\n", valueOrDefault(cfg.Engine.Heap, "(jvm default)"))
			fmt.Fprintf(out, "  engine.run_class:        %s\n", cfg.Engine.RunClass)
			fmt.Fprintf(out, "  engine.template_class:   %s\n", cfg.Engine.TemplateClass)
			fmt.Fprintf(out, "  engine.matrix_run_class: %s\n", valueOrDefault(cfg.Engine.MatrixRunClass, "(not set)"))
			fmt.Fprintf(out, "  engine.jvm_args:         %s\n", valueOrDefault(strings.Join(cfg.Engine.JVMArgs, " "), "(none)"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Templates:")
			fmt.Fprintf(out, "  templates.dir:           %s\n", valueOrDefault(cfg.Templates.Dir, "(built-in only)"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Ledger:")
			fmt.Fprintf(out, "  ledger.enabled:          %v\n", cfg.Ledger.Enabled)
			fmt.Fprintf(out, "  ledger.dir:              %s\n", valueOrDefault(cfg.Ledger.Dir, "(~/.simwrap)"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Logging:")
			fmt.Fprintf(out, "  logging.level:           %s\n", valueOrDefault(cfg.Logging.Level, "info"))
			return nil
		},
	}
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			value, found := getSetting(cfg, key)
			if !found {
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]interface{}{
						"error": "key not found",
						"key":   key,
					})
				}
				return fmt.Errorf("unknown setting: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(out, "%s = %v\n", key, value)
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			// Start from the file alone so environment overrides are not
			// written back.
			cfg := config.Default()
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setSetting(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := saveSettings(path, cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// getSetting retrieves a setting by dot-notation key.
func getSetting(cfg *config.SimwrapConfig, key string) (interface{}, bool) {
	switch key {
	case "engine.java":
		return cfg.Engine.Java, true
	case "engine.jar":
		return cfg.Engine.Jar, true
	case "engine.heap":
		return cfg.Engine.Heap, true
	case "engine.run_class":
		return cfg.Engine.RunClass, true
	case "engine.template_class":
		return cfg.Engine.TemplateClass, true
	case "engine.matrix_run_class":
		return cfg.Engine.MatrixRunClass, true
	case "engine.jvm_args":
		return cfg.Engine.JVMArgs, true
	case "templates.dir":
		return cfg.Templates.Dir, true
	case "ledger.enabled":
		return cfg.Ledger.Enabled, true
	case "ledger.dir":
		return cfg.Ledger.Dir, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setSetting sets a setting by dot-notation key.
func setSetting(cfg *config.SimwrapConfig, key, value string) error {
	switch key {
	case "engine.java":
		cfg.Engine.Java = value
	case "engine.jar":
		cfg.Engine.Jar = value
	case "engine.heap":
		cfg.Engine.Heap = value
	case "engine.run_class":
		cfg.Engine.RunClass = value
	case "engine.template_class":
		cfg.Engine.TemplateClass = value
	case "engine.matrix_run_class":
		cfg.Engine.MatrixRunClass = value
	case "engine.jvm_args":
		cfg.Engine.JVMArgs = strings.Fields(value)
	case "templates.dir":
		cfg.Templates.Dir = value
	case "ledger.enabled":
		cfg.Ledger.Enabled = value == "true" || value == "1"
	case "ledger.dir":
		cfg.Ledger.Dir = value
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

// saveSettings writes cfg to path as YAML.
func saveSettings(path string, cfg *config.SimwrapConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
