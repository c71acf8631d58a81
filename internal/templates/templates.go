// Package templates selects the base configuration for a simulation mode.
//
// Base configurations ship embedded in the binary. A Selector with Dir set
// prefers a file of the same name in Dir, so sites can adjust a template
// without rebuilding.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/pathutil"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

// base contains the built-in configuration templates.
//
//go:embed base/*.xml
var base embed.FS

// Template names.
const (
	CarOnly              = "baseconfig_car.xml"
	CarTeleportedTransit = "baseconfig_car_pt_tele.xml"
)

// ErrNoTemplate reports a mode that has no template. It is always fatal.
var ErrNoTemplate = errors.New("no configuration template for mode")

// Selector maps modes to templates.
type Selector struct {
	// Dir, when set, holds template files that shadow the embedded ones.
	Dir string
}

// Name returns the template name for mode.
func (s Selector) Name(mode options.Mode) (string, error) {
	switch mode {
	case options.ModeCarOnly:
		return CarOnly, nil
	case options.ModeCarTeleportedTransit:
		return CarTeleportedTransit, nil
	case options.ModeCarSimulatedTransit:
		return "", fmt.Errorf("%w %s: not supported yet", ErrNoTemplate, mode)
	default:
		return "", fmt.Errorf("%w %s", ErrNoTemplate, mode)
	}
}

// Raw returns the template document for mode.
func (s Selector) Raw(mode options.Mode) ([]byte, error) {
	name, err := s.Name(mode)
	if err != nil {
		return nil, err
	}
	_, data, err := s.read(name)
	return data, err
}

// Source returns where the template for mode is read from: a file path, or
// "embedded:<name>".
func (s Selector) Source(mode options.Mode) (string, error) {
	name, err := s.Name(mode)
	if err != nil {
		return "", err
	}
	src, _, err := s.read(name)
	return src, err
}

// Select loads the template for mode. A missing template is reported with
// pathutil.ErrNotFound and an unparsable one with simconfig.ErrMalformed; no
// partial tree is returned in either case.
func (s Selector) Select(mode options.Mode) (*simconfig.Tree, error) {
	name, err := s.Name(mode)
	if err != nil {
		return nil, err
	}
	if s.Dir != "" {
		if path := filepath.Join(s.Dir, name); fileExists(path) {
			return simconfig.Load(path)
		}
	}
	f, err := base.Open("base/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: embedded template %s", pathutil.ErrNotFound, name)
	}
	defer f.Close()
	t, err := simconfig.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return t, nil
}

func (s Selector) read(name string) (string, []byte, error) {
	if s.Dir != "" {
		path := filepath.Join(s.Dir, name)
		if fileExists(path) {
			if err := pathutil.CheckReadable(path); err != nil {
				return "", nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %s: %v", pathutil.ErrNotReadable, path, err)
			}
			return path, data, nil
		}
	}
	data, err := fs.ReadFile(base, "base/"+name)
	if err != nil {
		return "", nil, fmt.Errorf("%w: embedded template %s", pathutil.ErrNotFound, name)
	}
	return "embedded:" + name, data, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Names returns the names of all embedded templates.
func Names() ([]string, error) {
	entries, err := fs.ReadDir(base, "base")
	if err != nil {
		return nil, fmt.Errorf("reading embedded templates: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
