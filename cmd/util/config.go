package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/templates"
	"github.com/imdario/mergo"
	"github.com/spf13/pflag"
)

func normalize(name string) string {
	from := []string{"-", "_"}
	to := "."
	for _, sep := range from {
		name = strings.Replace(name, sep, to, -1)
	}
	return strings.ToLower(name)
}

// NormalizeFlags allows for flags to be case and separator insensitive.
// Use it by passing it to cobra.Command.SetGlobalNormalizationFunc
func NormalizeFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	lookup := map[string]string{"help": "help", normalize(name): name}

	f.VisitAll(func(f *pflag.Flag) {
		lookup[normalize(f.Name)] = f.Name
	})

	return pflag.NormalizedName(lookup[normalize(name)])
}

// MergeConfigFileWithFlags loads the configuration used by the run command.
// The file is filled first when it is a template, and the built-in
// configuration template is used when file is empty. Flag values override
// values in the file. The path of the parsed document is returned with the
// configuration.
func MergeConfigFileWithFlags(file string, flagConf config.Config, opts config.FillOptions) (config.Config, string, error) {
	conf := config.DefaultConfig()
	if opts.TemplatesDir == "" {
		opts.TemplatesDir = flagConf.TemplatesDir
	}

	var (
		path string
		err  error
	)
	if file == "" {
		text, terr := templates.Builtin(templates.Configuration)
		if terr != nil {
			return conf, "", terr
		}
		path, err = config.FillText(text, "", opts)
	} else {
		path, err = config.Fill(file, opts)
	}
	if err != nil {
		return conf, "", fmt.Errorf("filling config: %w", err)
	}

	if err := config.ParseFile(path, &conf); err != nil {
		return conf, path, err
	}

	// file vals <- cli val
	if err := mergo.MergeWithOverwrite(&conf, flagConf); err != nil {
		return conf, path, err
	}
	return conf, path, nil
}

// TempConfigFile writes the configuration to a temporary file.
// Returns:
// - "path" is the path of the file.
// - "cleanup" can be called to remove the temporary file.
func TempConfigFile(c config.Config, name string) (path string, cleanup func()) {
	tmpdir, err := os.MkdirTemp("", "")
	if err != nil {
		panic(err)
	}

	cleanup = func() {
		os.RemoveAll(tmpdir)
	}

	b, err := c.ToYaml()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(tmpdir, name)
	if err := os.WriteFile(p, b, 0644); err != nil {
		panic(err)
	}
	return p, cleanup
}
