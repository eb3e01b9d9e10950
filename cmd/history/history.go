// Package history contains the "autoproc history" command, which prints the
// submission journal.
package history

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beamline/autoproc/cmd/util"
	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/journal"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Options filter the printed entries.
type Options struct {
	// Maximum number of entries, all when zero.
	Limit int
	// Only entries whose folder contains this substring.
	Folder string
	// Reference time for the relative submission times, time.Now when zero.
	Now time.Time
}

// NewCommand returns the history command
func NewCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

type hooks struct {
	History func(path string, opts Options, w io.Writer) error
}

func newCommandHooks() (*cobra.Command, *hooks) {
	hooks := &hooks{
		History: History,
	}

	var (
		configFile string
		flagConf   config.Config
		opts       Options
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List submitted jobs, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flagConf.Journal.Path
			if path == "" {
				if configFile == "" {
					return fmt.Errorf("either --config or --journal-path is required")
				}
				conf, _, err := util.MergeConfigFileWithFlags(configFile, flagConf, config.FillOptions{})
				if err != nil {
					return fmt.Errorf("error processing config: %v", err)
				}
				path = conf.JournalPath()
			}
			return hooks.History(path, opts, cmd.OutOrStdout())
		},
	}

	cmd.SetGlobalNormalizationFunc(util.NormalizeFlags)
	f := cmd.Flags()
	f.AddFlagSet(util.JournalFlags(&flagConf, &configFile))
	f.IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of entries, 0 for all")
	f.StringVar(&opts.Folder, "folder", opts.Folder, "Only show folders containing this string")

	return cmd, hooks
}

// History prints the journal at path as a table.
func History(path string, opts Options, w io.Writer) error {
	j, err := journal.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer j.Close()

	all, err := j.List(0)
	if err != nil {
		return err
	}

	var entries []*journal.Entry
	for _, e := range all {
		if opts.Folder != "" && !strings.Contains(e.Folder, opts.Folder) {
			continue
		}
		entries = append(entries, e)
	}
	total := len(entries)
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintln(w, renderTable(entries, now))
	fmt.Fprintf(w, "%s of %s submissions\n", humanize.Comma(int64(len(entries))), humanize.Comma(int64(total)))
	return nil
}

func renderTable(entries []*journal.Entry, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Submitted", "Pipeline", "Job", "Job ID", "Profile", "Partition", "Folder"})

	for _, e := range entries {
		tw.AppendRow(table.Row{
			humanize.RelTime(e.Submitted, now, "ago", "from now"),
			e.Pipeline,
			e.JobName,
			e.JobID,
			e.Profile,
			e.Partition,
			e.Folder,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
