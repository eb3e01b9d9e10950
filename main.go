package main

import (
	"os"

	"github.com/beamline/autoproc/cmd"
	"github.com/beamline/autoproc/logger"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		logger.PrintSimpleError(err)
		os.Exit(1)
	}
}
