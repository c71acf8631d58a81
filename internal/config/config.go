// Package config provides unified configuration loading for simwrap.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/simwrap/internal/constants"
	"gopkg.in/yaml.v3"
)

// SimwrapConfig contains all simwrap tool settings. These describe how the
// tool runs (which engine, where state lives), never what a simulation run
// resolves to; run options come from the command line.
type SimwrapConfig struct {
	// Engine contains settings for the external simulation engine.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Templates contains settings for base configuration templates.
	Templates TemplatesConfig `json:"templates" yaml:"templates"`

	// Ledger contains settings for the run ledger database.
	Ledger LedgerConfig `json:"ledger" yaml:"ledger"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EngineConfig configures how the JVM-hosted engine is launched.
type EngineConfig struct {
	// Java is the java executable, resolved through PATH when not absolute.
	Java string `json:"java" yaml:"java"`

	// Jar is the engine release jar (or a classpath) passed with -cp.
	Jar string `json:"jar,omitempty" yaml:"jar,omitempty"`

	// Heap is the maximum heap size passed as -Xmx, e.g. "8g". Empty leaves
	// the JVM default.
	Heap string `json:"heap,omitempty" yaml:"heap,omitempty"`

	// RunClass is the main class that runs a simulation from a config file.
	RunClass string `json:"run_class" yaml:"run_class"`

	// TemplateClass is the main class that writes the engine's full default
	// configuration to a file.
	TemplateClass string `json:"template_class" yaml:"template_class"`

	// MatrixRunClass replaces RunClass when the resolved configuration uses
	// the matrix-based pt router, which needs a runner that installs it.
	MatrixRunClass string `json:"matrix_run_class,omitempty" yaml:"matrix_run_class,omitempty"`

	// JVMArgs are extra arguments placed before the main class.
	JVMArgs []string `json:"jvm_args,omitempty" yaml:"jvm_args,omitempty"`
}

// TemplatesConfig configures template lookup.
type TemplatesConfig struct {
	// Dir holds template files that take precedence over the built-in ones.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// LedgerConfig configures the SQLite run ledger.
type LedgerConfig struct {
	// Enabled records every dispatched run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the directory holding simwrap.db. Empty means ~/.simwrap.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// LoggingConfig configures simwrap's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <output>/decisions.jsonl.
	// "trace" additionally logs every template parameter.
	Level string `json:"level" yaml:"level"`
}

// Default returns a SimwrapConfig with sensible defaults.
func Default() *SimwrapConfig {
	return &SimwrapConfig{
		Engine: EngineConfig{
			Java:          "java",
			RunClass:      "org.matsim.run.RunMatsim",
			TemplateClass: "org.matsim.run.CreateFullConfig",
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.simwrap/config.yaml -> environment variables
func Load() (*SimwrapConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// DefaultPath returns ~/.simwrap/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.StateDirName, "config.yaml"), nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SimwrapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Paths may reference ${VAR} so one file can serve several machines.
	config.Engine.Jar = expandEnvVars(config.Engine.Jar)
	config.Templates.Dir = expandEnvVars(config.Templates.Dir)
	config.Ledger.Dir = expandEnvVars(config.Ledger.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *SimwrapConfig) Validate() error {
	if strings.TrimSpace(c.Engine.Java) == "" {
		return fmt.Errorf("engine.java must not be empty")
	}
	if strings.TrimSpace(c.Engine.RunClass) == "" {
		return fmt.Errorf("engine.run_class must not be empty")
	}
	if strings.TrimSpace(c.Engine.TemplateClass) == "" {
		return fmt.Errorf("engine.template_class must not be empty")
	}
	if c.Engine.Heap != "" && !validHeap(c.Engine.Heap) {
		return fmt.Errorf("invalid engine.heap: %s (expected a size such as 512m or 8g)", c.Engine.Heap)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// LedgerDir returns the ledger directory, falling back to ~/.simwrap.
func (c *SimwrapConfig) LedgerDir() (string, error) {
	if c.Ledger.Dir != "" {
		return c.Ledger.Dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.StateDirName), nil
}

// validHeap accepts JVM -Xmx sizes: digits with an optional k, m or g unit.
func validHeap(s string) bool {
	s = strings.ToLower(s)
	digits := strings.TrimRight(s, "kmg")
	if len(s)-len(digits) > 1 || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SimwrapConfig) {
	if v := os.Getenv("SIMWRAP_JAVA"); v != "" {
		config.Engine.Java = v
	}

	if v := os.Getenv("SIMWRAP_MATSIM_JAR"); v != "" {
		config.Engine.Jar = v
	}

	if v := os.Getenv("SIMWRAP_JVM_HEAP"); v != "" {
		config.Engine.Heap = v
	}

	if v := os.Getenv("SIMWRAP_TEMPLATES_DIR"); v != "" {
		config.Templates.Dir = v
	}

	if v := os.Getenv("SIMWRAP_LEDGER_ENABLED"); v != "" {
		config.Ledger.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("SIMWRAP_STATE_DIR"); v != "" {
		config.Ledger.Dir = v
	}

	if v := os.Getenv("SIMWRAP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
