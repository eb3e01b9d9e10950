package util

import (
	"github.com/beamline/autoproc/config"
	"github.com/spf13/pflag"
)

// RunFlags returns a new flag set for configuring a scanner run.
func RunFlags(flagConf *config.Config, configFile *string) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVarP(configFile, "config", "c", *configFile, "Config File")

	f.AddFlagSet(dispatchFlags(flagConf))
	f.AddFlagSet(scanFlags(flagConf))
	f.AddFlagSet(loggerFlags(flagConf))

	return f
}

// JournalFlags returns a new flag set for commands reading the journal.
func JournalFlags(flagConf *config.Config, configFile *string) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVarP(configFile, "config", "c", *configFile, "Config File")
	f.StringVar(&flagConf.Journal.Path, "Journal.Path", flagConf.Journal.Path, "Path to the submission journal")

	return f
}

func dispatchFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVarP(&flagConf.User, "user", "u", flagConf.User, "Cluster account used for the pending job check")
	f.BoolVar(&flagConf.Dispatch.Pool, "pool", flagConf.Dispatch.Pool, "Run every job on the unrestricted cluster pool")
	f.BoolVar(&flagConf.Dispatch.Force, "force", flagConf.Dispatch.Force, "Clear and reprocess folders which are already processed")
	f.BoolVar(&flagConf.Dispatch.StrictBackpressure, "Dispatch.StrictBackpressure", flagConf.Dispatch.StrictBackpressure, "Skip folders while too many jobs are pending")
	f.IntVar(&flagConf.Dispatch.MaxPendingJobs, "Dispatch.MaxPendingJobs", flagConf.Dispatch.MaxPendingJobs, "Pending job ceiling")
	f.StringVar(&flagConf.TemplatesDir, "templates-dir", flagConf.TemplatesDir, "Directory holding the XDS and geometry templates")
	f.StringVar(&flagConf.Metrics.Address, "metrics-addr", flagConf.Metrics.Address, "Address to serve prometheus metrics on")
	f.StringVar(&flagConf.Journal.Path, "Journal.Path", flagConf.Journal.Path, "Path to the submission journal")
	f.BoolVar(&flagConf.Journal.Disabled, "Journal.Disabled", flagConf.Journal.Disabled, "Do not record submissions")

	return f
}

func scanFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.Var(&flagConf.Scan.Interval, "Scan.Interval", "Pause between two sweeps")
	f.Var(&flagConf.Scan.WaitTimeout, "Scan.WaitTimeout", "How long to wait for a data file to become readable")

	return f
}

func loggerFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVar(&flagConf.Logger.Level, "Logger.Level", flagConf.Logger.Level, "Level of logging")
	f.StringVar(&flagConf.Logger.OutputFile, "Logger.OutputFile", flagConf.Logger.OutputFile, "File path to write logs to")
	f.StringVar(&flagConf.Logger.Formatter, "Logger.Formatter", flagConf.Logger.Formatter, "Logs formatter. One of ['text', 'json']")

	return f
}
