package simconfig

import (
	"path/filepath"
	"strings"
)

// InputFiles are the parameters that name input files, as module and param.
var InputFiles = [][2]string{
	{ModuleNetwork, "inputNetworkFile"},
	{ModulePlans, "inputPlansFile"},
	{ModuleMatrixBasedPtRouter, "ptStopsInputFile"},
}

// ResolveInputPaths makes every relative input file absolute, taking it
// relative to dir. An empty dir means the working directory. URLs are left
// alone.
func (t *Tree) ResolveInputPaths(dir string) {
	for _, p := range InputFiles {
		v, ok := t.Get(p[0], p[1])
		if !ok || v == "" || filepath.IsAbs(v) || strings.Contains(v, "://") {
			continue
		}
		if dir != "" {
			v = filepath.Join(dir, v)
		}
		if abs, err := filepath.Abs(v); err == nil {
			t.Set(p[0], p[1], abs)
		}
	}
}
