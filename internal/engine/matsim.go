package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nvandessel/simwrap/internal/config"
	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/network"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

// MATSim runs the engine with java.
type MATSim struct {
	cfg    config.EngineConfig
	runID  string
	logger *slog.Logger

	// Stdout and Stderr receive the engine's output. Both default to
	// os.Stderr so the wrapper's stdout stays clean.
	Stdout io.Writer
	Stderr io.Writer
}

var _ Engine = (*MATSim)(nil)

// NewMATSim returns an engine launcher for cfg. Availability is checked when
// the engine is first launched, so configuration generation works without a
// JVM installed.
func NewMATSim(cfg config.EngineConfig, runID string, logger *slog.Logger) *MATSim {
	return &MATSim{cfg: cfg, runID: runID, logger: logging.OrDiscard(logger)}
}

// check resolves the java binary and verifies the jar exists.
func (e *MATSim) check() (string, error) {
	bin := strings.TrimSpace(e.cfg.Java)
	if bin == "" {
		bin = "java"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: java binary %q not found: %v", ErrEngineUnavailable, bin, err)
	}
	if e.cfg.Jar == "" {
		return "", fmt.Errorf("%w: no engine jar configured (engine.jar or SIMWRAP_MATSIM_JAR)", ErrEngineUnavailable)
	}
	for _, entry := range filepath.SplitList(e.cfg.Jar) {
		if _, err := os.Stat(entry); err != nil {
			return "", fmt.Errorf("%w: engine jar %s: %v", ErrEngineUnavailable, entry, err)
		}
	}
	return path, nil
}

// args builds the java command line for class.
func (e *MATSim) args(class string, classArgs ...string) []string {
	var args []string
	if e.cfg.Heap != "" {
		args = append(args, "-Xmx"+e.cfg.Heap)
	}
	args = append(args, e.cfg.JVMArgs...)
	args = append(args, "-cp", e.cfg.Jar, class)
	return append(args, classArgs...)
}

func (e *MATSim) run(ctx context.Context, class string, classArgs ...string) error {
	bin, err := e.check()
	if err != nil {
		return err
	}
	if class == "" {
		return fmt.Errorf("%w: no main class configured", ErrEngineUnavailable)
	}
	args := e.args(class, classArgs...)
	e.logger.Debug("launching engine", "java", bin, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = e.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	cmd.Stderr = e.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("engine %s interrupted: %w", class, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("engine %s exited with code %d", class, exitErr.ExitCode())
		}
		return fmt.Errorf("engine %s failed: %w", class, err)
	}
	return nil
}

// WriteDefaultTemplate asks the engine to write its full default
// configuration to path.
func (e *MATSim) WriteDefaultTemplate(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := e.run(ctx, e.cfg.TemplateClass, path); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("engine did not write default configuration %s: %w", path, err)
	}
	return nil
}

// LoadScenario writes t to <output>/<run id>_config.xml and reads the
// network it names.
func (e *MATSim) LoadScenario(ctx context.Context, t *simconfig.Tree) (Scenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// inputs still relative here are relative to the working directory
	t.ResolveInputPaths("")

	netPath, _ := t.Get(simconfig.ModuleNetwork, "inputNetworkFile")
	if netPath == "" {
		return nil, errors.New("loading scenario: configuration names no network")
	}
	net, err := network.Read(netPath)
	if err != nil {
		return nil, fmt.Errorf("loading scenario: %w", err)
	}

	outDir, _ := t.Get(simconfig.ModuleControler, "outputDirectory")
	if outDir == "" {
		outDir = "."
	}
	s := &scenario{
		engine:     e,
		tree:       t,
		net:        net,
		configPath: filepath.Join(outDir, e.runID+"_config.xml"),
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	e.logger.Info("scenario loaded", "config", s.configPath, "network", netPath,
		"nodes", len(net.Nodes), "links", len(net.Links.Items))
	return s, nil
}

type scenario struct {
	engine     *MATSim
	tree       *simconfig.Tree
	net        *network.Network
	configPath string
}

func (s *scenario) Network() *network.Network { return s.net }

func (s *scenario) ConfigPath() string { return s.configPath }

func (s *scenario) NetworkPath() string {
	v, _ := s.tree.Get(simconfig.ModuleNetwork, "inputNetworkFile")
	return v
}

func (s *scenario) ReplaceNetwork(path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.tree.Set(simconfig.ModuleNetwork, "inputNetworkFile", path)
	return s.save()
}

func (s *scenario) save() error {
	if err := simconfig.Save(s.configPath, s.tree); err != nil {
		return fmt.Errorf("writing run configuration: %w", err)
	}
	return nil
}

// Run launches the engine on the saved configuration. Configurations using
// the matrix-based pt router need a runner that installs it.
func (s *scenario) Run(ctx context.Context) error {
	class := s.engine.cfg.RunClass
	if s.tree.HasModule(simconfig.ModuleMatrixBasedPtRouter) {
		if s.engine.cfg.MatrixRunClass != "" {
			class = s.engine.cfg.MatrixRunClass
		} else {
			s.engine.logger.Warn("configuration uses the matrix-based pt router but no matrix run class is configured",
				"run_class", class)
		}
	}
	s.engine.logger.Info("starting simulation", "class", class, "config", s.configPath)
	return s.engine.run(ctx, class, s.configPath)
}
