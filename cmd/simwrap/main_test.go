package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/simwrap/internal/config"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

// isolateHome points HOME and the state directory at a temp directory so
// tests never touch the real ~/.simwrap.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("SIMWRAP_STATE_DIR", filepath.Join(home, ".simwrap"))
	t.Setenv("SIMWRAP_LOG_LEVEL", "")
	return home
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd(args)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestNewRootCmd_RegistersOptionFlags(t *testing.T) {
	cmd := newRootCmd(nil)
	for _, name := range []string{"type", "modes", "plans_sample", "pt-stops-csv", "override_config", "output"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
	if cmd.PersistentFlags().Lookup("json") == nil || cmd.PersistentFlags().Lookup("log-level") == nil {
		t.Error("missing global flags")
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if v["version"] != version {
		t.Errorf("version = %q", v["version"])
	}
}

func TestRoot_MissingType(t *testing.T) {
	isolateHome(t)
	out := filepath.Join(t.TempDir(), "out")

	_, stderr, err := execute(t, "--output", out)
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("err = %v, want errRunFailed", err)
	}
	if !strings.Contains(stderr, "level=ERROR") || !strings.Contains(stderr, "missing run type") {
		t.Errorf("stderr = %q, want an ERROR line naming the missing type", stderr)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output directory created for a run without a type")
	}
}

func TestRoot_MissingTypeSkipsSettings(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".simwrap")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("logging: [not a map"), 0600); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := execute(t, "--output", filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("err = %v, want errRunFailed before settings are read", err)
	}
	if !strings.Contains(stderr, "missing run type") {
		t.Errorf("stderr = %q, want the missing type reported", stderr)
	}
}

func TestRoot_GenerateConfig(t *testing.T) {
	isolateHome(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, stderr, err := execute(t,
		"--TYPE", "config", "--Output", out, "--iterations_max", "3", "--not_an_option", "x", "--json")
	if err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, stderr)
	}

	tree, err := simconfig.Load(filepath.Join(out, "config.xml"))
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if v, _ := tree.Get(simconfig.ModuleControler, "lastIteration"); v != "3" {
		t.Errorf("lastIteration = %q, want 3", v)
	}
	if !strings.Contains(stderr, "unknown option ignored") || !strings.Contains(stderr, "--not_an_option") {
		t.Errorf("unknown option not reported:\n%s", stderr)
	}

	var res map[string]string
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if res["type"] != "config" || res["config"] != filepath.Join(out, "config.xml") {
		t.Errorf("result = %v", res)
	}

	runsOut, _, err := execute(t, "runs", "--json")
	if err != nil {
		t.Fatalf("runs error = %v", err)
	}
	var listed struct {
		Count int `json:"count"`
		Runs  []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(runsOut), &listed); err != nil {
		t.Fatalf("invalid JSON %q: %v", runsOut, err)
	}
	if listed.Count != 1 || listed.Runs[0].ID != res["run_id"] || listed.Runs[0].Status != "succeeded" {
		t.Errorf("runs = %+v", listed)
	}
}

func TestTemplateCmd(t *testing.T) {
	isolateHome(t)

	out, _, err := execute(t, "template", "car_sim_pt_teleport")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<config") || !strings.Contains(out, "teleportedModeParameters") {
		t.Errorf("unexpected template output:\n%s", out)
	}

	if _, _, err := execute(t, "template", "bogus"); err == nil {
		t.Error("expected an error for an unknown mode")
	}

	list, _, err := execute(t, "template", "--list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(list, "baseconfig_car.xml") {
		t.Errorf("list = %q", list)
	}
}

func TestSettingsCmd(t *testing.T) {
	home := isolateHome(t)

	if _, _, err := execute(t, "settings", "set", "engine.heap", "4g"); err != nil {
		t.Fatalf("set error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".simwrap", "config.yaml")); err != nil {
		t.Errorf("settings file not written: %v", err)
	}

	out, _, err := execute(t, "settings", "get", "engine.heap")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "engine.heap = 4g" {
		t.Errorf("get = %q", out)
	}

	if _, _, err := execute(t, "settings", "set", "engine.heap", "lots"); err == nil {
		t.Error("expected an error for an invalid heap")
	}
	if _, _, err := execute(t, "settings", "get", "nope"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestGetSetSetting(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  interface{}
	}{
		{"engine.jar", "/opt/matsim.jar", "/opt/matsim.jar"},
		{"engine.jvm_args", "-Da=1 -Db=2", []string{"-Da=1", "-Db=2"}},
		{"ledger.enabled", "false", false},
		{"logging.level", "debug", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := config.Default()
			if err := setSetting(cfg, tt.key, tt.value); err != nil {
				t.Fatal(err)
			}
			got, ok := getSetting(cfg, tt.key)
			if !ok {
				t.Fatal("key not found")
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("got %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestStripGlobalFlags(t *testing.T) {
	got := stripGlobalFlags([]string{"--json", "--type", "config", "--JSON=true", "--x", "1"})
	want := []string{"--type", "config", "--x", "1"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("stripGlobalFlags() = %v, want %v", got, want)
	}
}
