package simconfig

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/simwrap/internal/pathutil"
)

const baseDoc = `<?xml version="1.0" ?>
<!DOCTYPE config SYSTEM "http://www.matsim.org/files/dtd/config_v2.dtd">
<config>
	<module name="global">
		<param name="coordinateSystem" value="EPSG:4326" />
	</module>
	<module name="controler">
		<param name="lastIteration" value="10" />
		<param name="outputDirectory" value="./output" />
	</module>
	<module name="planCalcScore">
		<parameterset type="scoringParameters">
			<param name="subpopulation" value="null" />
			<parameterset type="activityParams">
				<param name="activityType" value="home" />
				<param name="typicalDuration" value="12:00:00" />
			</parameterset>
		</parameterset>
	</module>
	<module name="plansCalcRoute">
		<parameterset type="teleportedModeParameters">
			<param name="mode" value="pt" />
			<param name="teleportedModeFreespeedFactor" value="2.0" />
		</parameterset>
	</module>
</config>
`

// flatten renders every parameter as module/set[key]/name=value for diffs.
func flatten(t *Tree) []string {
	var out []string
	var walk func(prefix string, g *Group)
	walk = func(prefix string, g *Group) {
		for _, p := range g.Params {
			out = append(out, prefix+"/"+p.Name+"="+p.Value)
		}
		for _, s := range g.Sets {
			_, key, _ := s.naturalKey()
			walk(prefix+"/"+s.Type+"["+key+"]", &s.Group)
		}
	}
	for _, m := range t.Modules() {
		walk(m.Name, &m.Group)
	}
	return out
}

func mustDecode(t *testing.T, doc string) *Tree {
	t.Helper()
	tree, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return tree
}

func TestDecode(t *testing.T) {
	tree := mustDecode(t, baseDoc)

	want := []string{
		"global/coordinateSystem=EPSG:4326",
		"controler/lastIteration=10",
		"controler/outputDirectory=./output",
		"planCalcScore/scoringParameters[null]/subpopulation=null",
		"planCalcScore/scoringParameters[null]/activityParams[home]/activityType=home",
		"planCalcScore/scoringParameters[null]/activityParams[home]/typicalDuration=12:00:00",
		"plansCalcRoute/teleportedModeParameters[pt]/mode=pt",
		"plansCalcRoute/teleportedModeParameters[pt]/teleportedModeFreespeedFactor=2.0",
	}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}

	pt := tree.Module(ModulePlansCalcRoute).FindSet("teleportedModeParameters", "pt")
	if pt == nil {
		t.Fatal("FindSet(teleportedModeParameters, pt) = nil")
	}
	if v, _ := pt.Get("teleportedModeFreespeedFactor"); v != "2.0" {
		t.Errorf("teleportedModeFreespeedFactor = %q", v)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not xml", "plans,network\n1,2\n"},
		{"wrong root", "<population></population>"},
		{"unclosed", "<config><module name=\"qsim\">"},
		{"module without name", "<config><module><param name=\"a\" value=\"b\"/></module></config>"},
		{"param without name", "<config><module name=\"qsim\"><param value=\"b\"/></module></config>"},
		{"set without type", "<config><module name=\"qsim\"><parameterset/></module></config>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestEncodeDecode_PreservesContent(t *testing.T) {
	tree := mustDecode(t, baseDoc)
	tree.Set(ModuleQSim, "startTime", "06:00:00")
	tree.Set(ModuleNetwork, "inputNetworkFile", `data/"quoted" & <odd>.xml`)

	var buf bytes.Buffer
	if err := Encode(&buf, tree); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(buf.String(), DocType) {
		t.Error("encoded document lacks the DOCTYPE")
	}

	again := mustDecode(t, buf.String())
	if !tree.Equal(again) {
		t.Errorf("content changed after encoding:\n%s", cmp.Diff(flatten(tree), flatten(again)))
	}
}

func TestGroup_SetGetUnset(t *testing.T) {
	tree := New()
	tree.Set(ModuleQSim, "flowCapacityFactor", "1.0")
	tree.Set(ModuleQSim, "flowCapacityFactor", "0.1")

	if v, ok := tree.Get(ModuleQSim, "flowCapacityFactor"); !ok || v != "0.1" {
		t.Errorf("Get() = (%q, %v), want (0.1, true)", v, ok)
	}
	if n := len(tree.Module(ModuleQSim).Params); n != 1 {
		t.Errorf("Set() should overwrite, got %d params", n)
	}
	if !tree.Module(ModuleQSim).Unset("flowCapacityFactor") {
		t.Error("Unset() = false for present param")
	}
	if _, ok := tree.Get(ModuleQSim, "flowCapacityFactor"); ok {
		t.Error("param still present after Unset()")
	}
	if _, ok := tree.Get("missing", "x"); ok {
		t.Error("Get() on missing module should report false")
	}
}

func TestMerge_OverlayWins(t *testing.T) {
	base := mustDecode(t, baseDoc)
	overlay := mustDecode(t, `<config>
	<module name="controler">
		<param name="lastIteration" value="3" />
	</module>
	<module name="planCalcScore">
		<parameterset type="scoringParameters">
			<param name="subpopulation" value="null" />
			<parameterset type="activityParams">
				<param name="activityType" value="home" />
				<param name="typicalDuration" value="14:00:00" />
			</parameterset>
			<parameterset type="activityParams">
				<param name="activityType" value="work" />
				<param name="typicalDuration" value="08:00:00" />
			</parameterset>
		</parameterset>
	</module>
	<module name="linkStats">
		<param name="writeLinkStatsInterval" value="5" />
	</module>
</config>`)
	before := overlay.Clone()

	base.Merge(overlay)

	want := []string{
		"global/coordinateSystem=EPSG:4326",
		"controler/lastIteration=3",
		"controler/outputDirectory=./output",
		"planCalcScore/scoringParameters[null]/subpopulation=null",
		"planCalcScore/scoringParameters[null]/activityParams[home]/activityType=home",
		"planCalcScore/scoringParameters[null]/activityParams[home]/typicalDuration=14:00:00",
		"planCalcScore/scoringParameters[null]/activityParams[work]/activityType=work",
		"planCalcScore/scoringParameters[null]/activityParams[work]/typicalDuration=08:00:00",
		"plansCalcRoute/teleportedModeParameters[pt]/mode=pt",
		"plansCalcRoute/teleportedModeParameters[pt]/teleportedModeFreespeedFactor=2.0",
		"linkStats/writeLinkStatsInterval=5",
	}
	if diff := cmp.Diff(want, flatten(base)); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	if !overlay.Equal(before) {
		t.Error("Merge() modified the overlay")
	}
}

func TestClone_Independent(t *testing.T) {
	orig := mustDecode(t, baseDoc)
	c := orig.Clone()
	if !orig.Equal(c) {
		t.Fatal("Clone() differs from original")
	}

	c.Set(ModuleGlobal, "coordinateSystem", "EPSG:3112")
	c.Module(ModulePlansCalcRoute).Sets[0].Set("teleportedModeSpeed", "8.3")

	if v, _ := orig.Get(ModuleGlobal, "coordinateSystem"); v != "EPSG:4326" {
		t.Errorf("original mutated through clone: %s", v)
	}
	if _, ok := orig.Module(ModulePlansCalcRoute).Sets[0].Get("teleportedModeSpeed"); ok {
		t.Error("original parameter set mutated through clone")
	}
	if orig.Equal(c) {
		t.Error("Equal() should report the difference")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "config.xml")
	if err := os.WriteFile(good, []byte(baseDoc), 0600); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "broken.xml")
	if err := os.WriteFile(bad, []byte("<config><module"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(good); err != nil {
		t.Errorf("Load(good) error = %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.xml")); !errors.Is(err, pathutil.ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := Load(dir); !errors.Is(err, pathutil.ErrNotReadable) {
		t.Errorf("Load(dir) error = %v, want ErrNotReadable", err)
	}
	if _, err := Load(bad); !errors.Is(err, ErrMalformed) {
		t.Errorf("Load(bad) error = %v, want ErrMalformed", err)
	}
}

func TestSaveLoad_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.xml.gz")
	tree := mustDecode(t, baseDoc)

	if err := Save(path, tree); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !tree.Equal(got) {
		t.Errorf("gzip round trip changed content:\n%s", cmp.Diff(flatten(tree), flatten(got)))
	}
}

func TestLoadInto_UnchangedOnFailure(t *testing.T) {
	tree := mustDecode(t, baseDoc)
	before := tree.Clone()

	if err := LoadInto(tree, filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Fatal("LoadInto() should fail for a missing file")
	}
	if !tree.Equal(before) {
		t.Error("tree changed although LoadInto() failed")
	}
}

func TestTree_ResolveInputPaths(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "elsewhere", "plans.xml")

	tree := New()
	tree.Set(ModuleNetwork, "inputNetworkFile", "network.xml")
	tree.Set(ModulePlans, "inputPlansFile", abs)
	tree.Set(ModuleMatrixBasedPtRouter, "ptStopsInputFile", "https://example.org/stops.csv")
	tree.Set(ModuleControler, "outputDirectory", "output")

	tree.ResolveInputPaths(filepath.Join(dir, "scenario"))

	want := map[[2]string]string{
		{ModuleNetwork, "inputNetworkFile"}:             filepath.Join(dir, "scenario", "network.xml"),
		{ModulePlans, "inputPlansFile"}:                 abs,
		{ModuleMatrixBasedPtRouter, "ptStopsInputFile"}: "https://example.org/stops.csv",
		{ModuleControler, "outputDirectory"}:            "output",
	}
	for k, w := range want {
		if got, _ := tree.Get(k[0], k[1]); got != w {
			t.Errorf("%s.%s = %q, want %q", k[0], k[1], got, w)
		}
	}
}

func TestTree_ResolveInputPaths_WorkingDir(t *testing.T) {
	t.Chdir(t.TempDir())
	tree := New()
	tree.Set(ModulePlans, "inputPlansFile", "plans.xml")

	tree.ResolveInputPaths("")

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := tree.Get(ModulePlans, "inputPlansFile"); got != filepath.Join(wd, "plans.xml") {
		t.Errorf("inputPlansFile = %q, want it under %q", got, wd)
	}
}
