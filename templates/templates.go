// Package templates holds the built-in parameter and configuration templates.
package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beamline/autoproc/util/fsutil"
)

// Names of the built-in templates.
const (
	XDS           = "XDS.INP"
	XDSWedges     = "XDS_WEDGES.INP"
	Geometry      = "pilatus6M.geom"
	Configuration = "configuration_template.yaml"
)

//go:embed XDS.INP XDS_WEDGES.INP pilatus6M.geom configuration_template.yaml
var files embed.FS

// Names lists every built-in template.
var Names = []string{XDS, XDSWedges, Geometry, Configuration}

// Builtin returns the content of the named built-in template.
func Builtin(name string) (string, error) {
	b, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("unknown built-in template %q: %w", name, err)
	}
	return string(b), nil
}

// Load returns the content of the template at path, or of the named
// built-in template when path is empty.
func Load(path, name string) (string, error) {
	if path == "" {
		return Builtin(name)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", path, err)
	}
	return string(b), nil
}

// Materialize writes the built-in templates into dir, unless a file of the
// same name already exists there, and returns their paths keyed by name.
func Materialize(dir string) (map[string]string, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(Names))
	for _, name := range Names {
		p := filepath.Join(dir, name)
		paths[name] = p
		if fsutil.Exists(p) {
			continue
		}
		b, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(p, b, 0644); err != nil {
			return nil, fmt.Errorf("writing template %s: %w", p, err)
		}
	}
	return paths, nil
}
