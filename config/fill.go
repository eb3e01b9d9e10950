package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beamline/autoproc/template"
	"github.com/beamline/autoproc/templates"
	"github.com/beamline/autoproc/util/fsutil"
	"github.com/ghodss/yaml"
)

// FillOptions control how a templated configuration file is filled.
type FillOptions struct {
	// Directory holding XDS.INP, XDS_WEDGES.INP and pilatus6M.geom. When
	// empty the built-in templates are written to
	// "<processed_directory>/templates".
	TemplatesDir string
	// Overrides the processed directory read from the filled document.
	ProcessedDirectory string
	// Substituted for ${working_directory}. Defaults to the current directory.
	WorkingDirectory string
	// Time used to name the output file. Defaults to time.Now().
	Now time.Time
}

// FilledName returns the name of the filled configuration file for t.
func FilledName(t time.Time) string {
	return fmt.Sprintf("filled_config_%d-%d.yaml", int(t.Month()), t.Year())
}

// Fill checks whether the configuration file at path is a template, i.e.
// contains "$" placeholders. If not, path is returned unchanged. Otherwise
// the template locations are substituted, leaving any other placeholder as
// is, the result is written to "filled_config_<month>-<year>.yaml" in the
// processed directory, and the path of that file is returned.
func Fill(path string, opts FillOptions) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading config at path %s: %w", path, err)
	}
	return FillText(string(raw), path, opts)
}

// FillText is Fill for a document already in memory. source is only used
// to return when text is not a template.
func FillText(text, source string, opts FillOptions) (string, error) {
	if !strings.Contains(text, "$") {
		return source, nil
	}

	wd := opts.WorkingDirectory
	if wd == "" {
		wd, _ = os.Getwd()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	values := template.Values{"working_directory": wd}

	processed := opts.ProcessedDirectory
	if processed == "" {
		// The template paths may live under the processed directory, so
		// resolve it from a first pass which only knows the working directory.
		partial, err := template.Render(text, values, template.PassThrough)
		if err != nil {
			return "", err
		}
		processed, err = processedDirectory(partial)
		if err != nil {
			return "", err
		}
	}
	if err := fsutil.EnsureDir(processed); err != nil {
		return "", err
	}

	dir := opts.TemplatesDir
	if dir == "" {
		dir = filepath.Join(processed, "templates")
		if _, err := templates.Materialize(dir); err != nil {
			return "", fmt.Errorf("writing built-in templates: %w", err)
		}
	}
	values["XDS_INP_template"] = filepath.Join(dir, templates.XDS)
	values["XDS_INP_wedges_template"] = filepath.Join(dir, templates.XDSWedges)
	values["geometry_for_processing"] = filepath.Join(dir, templates.Geometry)

	filled, err := template.Render(text, values, template.PassThrough)
	if err != nil {
		return "", err
	}

	out := filepath.Join(processed, FilledName(now))
	if err := os.WriteFile(out, []byte(filled), 0644); err != nil {
		return "", fmt.Errorf("writing filled config: %w", err)
	}
	return out, nil
}

func processedDirectory(doc string) (string, error) {
	var partial struct {
		Crystallography struct {
			ProcessedDirectory string `json:"processed_directory"`
		} `json:"crystallography"`
	}
	if err := yaml.Unmarshal([]byte(doc), &partial); err != nil {
		return "", fmt.Errorf("failed to determine processed_directory: %w", err)
	}
	p := partial.Crystallography.ProcessedDirectory
	if p == "" || strings.Contains(p, "$") {
		return "", fmt.Errorf("failed to determine processed_directory")
	}
	return p, nil
}
