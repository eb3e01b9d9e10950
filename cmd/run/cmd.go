// Package run contains the "autoproc run" command, which wires the scanner,
// the dispatcher and the Slurm backend together.
package run

import (
	"context"
	"fmt"

	"github.com/beamline/autoproc/cmd/util"
	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/logger"
	"github.com/spf13/cobra"
)

// Options select what a run processes.
type Options struct {
	// Scan the raw directory. Otherwise only Path is processed.
	Offline bool
	// Folder processed in online mode.
	Path string
	// Worklist of path substrings restricting an offline scan.
	Blocks string
	// Sweep once instead of polling.
	Once bool
}

// NewCommand returns the run command
func NewCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

type hooks struct {
	Run func(ctx context.Context, conf config.Config, opts Options, log *logger.Logger) error
}

func newCommandHooks() (*cobra.Command, *hooks) {
	hooks := &hooks{
		Run: Run,
	}

	var (
		configFile string
		flagConf   config.Config
		opts       Options
		online     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan for new data and submit processing jobs.",
		Long: `Runs the dispatcher. In online mode (the default) the folder given by
--path is processed once. In offline mode the raw directory is scanned,
either for every folder or for the runs listed in the --blocks file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if online {
				opts.Offline = false
			}

			conf, path, err := util.MergeConfigFileWithFlags(configFile, flagConf, config.FillOptions{})
			if err != nil {
				return fmt.Errorf("error processing config: %v", err)
			}

			log := logger.NewLogger("autoproc", conf.Logger)
			log.Info("Using configuration", "file", path)
			return hooks.Run(context.Background(), conf, opts, log)
		},
	}

	cmd.SetGlobalNormalizationFunc(util.NormalizeFlags)
	f := cmd.Flags()
	f.AddFlagSet(util.RunFlags(&flagConf, &configFile))
	f.BoolVar(&opts.Offline, "offline", opts.Offline, "Scan the raw directory instead of a single folder")
	f.BoolVar(&online, "online", online, "Process only the folder given by --path")
	f.StringVar(&opts.Path, "path", opts.Path, "Raw data folder to process in online mode")
	f.StringVar(&opts.Blocks, "blocks", opts.Blocks, "File listing the runs to process in offline mode")
	f.BoolVar(&opts.Once, "once", opts.Once, "Sweep the raw directory once instead of polling")
	cmd.MarkFlagsMutuallyExclusive("offline", "online")

	return cmd, hooks
}
