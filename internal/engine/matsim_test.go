package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/simwrap/internal/config"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

const fakeJava = `#!/bin/sh
echo "$@" > "$FAKE_JAVA_ARGS"
for last; do :; done
case "$*" in
*CreateFullConfig*) echo "<config></config>" > "$last" ;;
esac
exit ${FAKE_JAVA_EXIT:-0}
`

const testNetwork = `<network>
	<nodes><node id="a" x="0" y="0"/><node id="b" x="1" y="0"/></nodes>
	<links><link id="ab" from="a" to="b" length="1" freespeed="1" capacity="1" permlanes="1"/></links>
</network>
`

// setupFakeEngine installs a shell script posing as java plus an empty jar.
func setupFakeEngine(t *testing.T) (config.EngineConfig, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake java is a shell script")
	}
	dir := t.TempDir()
	java := filepath.Join(dir, "java")
	if err := os.WriteFile(java, []byte(fakeJava), 0755); err != nil {
		t.Fatal(err)
	}
	jar := filepath.Join(dir, "matsim.jar")
	if err := os.WriteFile(jar, nil, 0644); err != nil {
		t.Fatal(err)
	}
	argsFile := filepath.Join(dir, "args")
	t.Setenv("FAKE_JAVA_ARGS", argsFile)

	cfg := config.Default().Engine
	cfg.Java = java
	cfg.Jar = jar
	return cfg, argsFile
}

func readArgs(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("engine was not launched: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestMATSim_Args(t *testing.T) {
	e := NewMATSim(config.EngineConfig{
		Jar:     "matsim.jar",
		Heap:    "8g",
		JVMArgs: []string{"-Djava.awt.headless=true"},
	}, "run", nil)

	got := e.args("org.matsim.run.RunMatsim", "config.xml")
	want := []string{"-Xmx8g", "-Djava.awt.headless=true", "-cp", "matsim.jar", "org.matsim.run.RunMatsim", "config.xml"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestMATSim_Unavailable(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "matsim.jar")
	if err := os.WriteFile(jar, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  config.EngineConfig
	}{
		{"missing java", config.EngineConfig{Java: filepath.Join(dir, "no-java"), Jar: jar, TemplateClass: "x"}},
		{"no jar", config.EngineConfig{Java: "sh", TemplateClass: "x"}},
		{"missing jar", config.EngineConfig{Java: "sh", Jar: filepath.Join(dir, "nope.jar"), TemplateClass: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewMATSim(tt.cfg, "run", nil)
			err := e.WriteDefaultTemplate(context.Background(), filepath.Join(dir, "out", "config.xml"))
			if !errors.Is(err, ErrEngineUnavailable) {
				t.Errorf("error = %v, want ErrEngineUnavailable", err)
			}
		})
	}
}

func TestMATSim_WriteDefaultTemplate(t *testing.T) {
	cfg, argsFile := setupFakeEngine(t)
	out := filepath.Join(t.TempDir(), "output", "config.xml")

	e := NewMATSim(cfg, "run", nil)
	if err := e.WriteDefaultTemplate(context.Background(), out); err != nil {
		t.Fatalf("WriteDefaultTemplate() error = %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("template not written: %v", err)
	}
	if args := readArgs(t, argsFile); !strings.HasSuffix(args, cfg.TemplateClass+" "+out) {
		t.Errorf("args = %q", args)
	}
}

func TestMATSim_ExitCode(t *testing.T) {
	cfg, _ := setupFakeEngine(t)
	t.Setenv("FAKE_JAVA_EXIT", "3")

	e := NewMATSim(cfg, "run", nil)
	err := e.run(context.Background(), cfg.RunClass, "config.xml")
	if err == nil || !strings.Contains(err.Error(), "code 3") {
		t.Errorf("error = %v, want exit code 3", err)
	}
}

func scenarioTree(t *testing.T, dir string) *simconfig.Tree {
	t.Helper()
	netPath := filepath.Join(dir, "network.xml")
	if err := os.WriteFile(netPath, []byte(testNetwork), 0644); err != nil {
		t.Fatal(err)
	}
	tree := simconfig.New()
	tree.Set(simconfig.ModuleNetwork, "inputNetworkFile", netPath)
	tree.Set(simconfig.ModuleControler, "outputDirectory", filepath.Join(dir, "output"))
	return tree
}

func TestMATSim_LoadScenarioAndRun(t *testing.T) {
	cfg, argsFile := setupFakeEngine(t)
	dir := t.TempDir()
	tree := scenarioTree(t, dir)

	e := NewMATSim(cfg, "abc", nil)
	s, err := e.LoadScenario(context.Background(), tree)
	if err != nil {
		t.Fatalf("LoadScenario() error = %v", err)
	}
	wantConfig := filepath.Join(dir, "output", "abc_config.xml")
	if s.ConfigPath() != wantConfig {
		t.Errorf("ConfigPath() = %q, want %q", s.ConfigPath(), wantConfig)
	}
	if got := len(s.Network().Nodes); got != 2 {
		t.Errorf("network has %d nodes, want 2", got)
	}

	cleaned := filepath.Join(dir, "network_cleaned.xml")
	if err := s.ReplaceNetwork(cleaned); err != nil {
		t.Fatalf("ReplaceNetwork() error = %v", err)
	}
	saved, err := simconfig.Load(wantConfig)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := saved.Get(simconfig.ModuleNetwork, "inputNetworkFile"); v != cleaned {
		t.Errorf("saved network = %q, want %q", v, cleaned)
	}
	if s.NetworkPath() != cleaned {
		t.Errorf("NetworkPath() = %q", s.NetworkPath())
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if args := readArgs(t, argsFile); !strings.HasSuffix(args, cfg.RunClass+" "+wantConfig) {
		t.Errorf("args = %q", args)
	}
}

func TestMATSim_MatrixRunClass(t *testing.T) {
	cfg, argsFile := setupFakeEngine(t)
	cfg.MatrixRunClass = "org.matsim.contrib.matrixbasedptrouter.RunMatrixBasedPtRouter"
	dir := t.TempDir()
	tree := scenarioTree(t, dir)
	tree.Set(simconfig.ModuleMatrixBasedPtRouter, "usingPtStops", "true")

	s, err := NewMATSim(cfg, "abc", nil).LoadScenario(context.Background(), tree)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if args := readArgs(t, argsFile); !strings.Contains(args, cfg.MatrixRunClass) {
		t.Errorf("args = %q, want the matrix run class", args)
	}
}

func TestMATSim_LoadScenarioErrors(t *testing.T) {
	e := NewMATSim(config.Default().Engine, "abc", nil)

	if _, err := e.LoadScenario(context.Background(), simconfig.New()); err == nil {
		t.Error("expected an error when no network is configured")
	}

	tree := simconfig.New()
	tree.Set(simconfig.ModuleNetwork, "inputNetworkFile", filepath.Join(t.TempDir(), "nope.xml"))
	if _, err := e.LoadScenario(context.Background(), tree); err == nil {
		t.Error("expected an error for a missing network")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.LoadScenario(ctx, scenarioTree(t, t.TempDir())); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
