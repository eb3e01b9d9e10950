// Package cmd contains the autoproc CLI commands.
package cmd

import (
	"github.com/beamline/autoproc/cmd/history"
	"github.com/beamline/autoproc/cmd/run"
	"github.com/beamline/autoproc/cmd/version"
	"github.com/spf13/cobra"
)

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:           "autoproc",
	Short:         "Dispatches crystallography data processing jobs to Slurm.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	RootCmd.AddCommand(completionCmd)
	RootCmd.AddCommand(history.NewCommand())
	RootCmd.AddCommand(run.NewCommand())
	RootCmd.AddCommand(version.Cmd)
}
