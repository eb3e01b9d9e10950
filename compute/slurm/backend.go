// Package slurm submits jobs to a Slurm cluster with sbatch and counts
// jobs with squeue.
package slurm

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/util/fsutil"
)

// ScriptMode is the mode of written job scripts.
const ScriptMode = 0755

// DefaultTemplate renders a job script. The following fields are available:
//
//	Name         job name
//	Partition    partition
//	Nodes        node count
//	Output       stdout path
//	Error        stderr path
//	Reservation  reservation, may be empty
//	Time         time limit "H:MM:SS", may be empty
//	Memory       memory limit in MB, may be empty
//	Nice         nice value, zero when unset
//	Setup        environment setup lines
//	Commands     command lines
//
// See https://golang.org/pkg/text/template for more information
const DefaultTemplate = `#!/bin/sh
#SBATCH --job-name={{.Name}}
#SBATCH --partition={{.Partition}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --output={{.Output}}
#SBATCH --error={{.Error}}
{{- if .Reservation}}
#SBATCH --reservation={{.Reservation}}
{{- end}}
{{- if .Time}}
#SBATCH --time={{.Time}}
{{- end}}
{{- if .Memory}}
#SBATCH --mem={{.Memory}}
{{- end}}
{{- if .Nice}}
#SBATCH --nice={{.Nice}}
{{- end}}
{{range .Setup}}{{.}}
{{end}}
{{- range .Commands}}{{.}}
{{end}}`

// Backend implements compute.Cluster on top of sbatch and squeue.
type Backend struct {
	Runner Runner
	// Job script template, DefaultTemplate when empty.
	Template  string
	SubmitCmd string
	QueueCmd  string
	Log       *logger.Logger
}

// NewBackend returns a Slurm Backend using the given runner.
func NewBackend(runner Runner, tpl string, log *logger.Logger) *Backend {
	return &Backend{
		Runner:    runner,
		Template:  tpl,
		SubmitCmd: "sbatch",
		QueueCmd:  "squeue",
		Log:       log,
	}
}

// Script renders the job script of jd.
func (b *Backend) Script(jd *compute.JobDescription) ([]byte, error) {
	text := b.Template
	if text == "" {
		text = DefaultTemplate
	}
	tpl, err := template.New("slurm").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing job script template: %w", err)
	}

	var buf bytes.Buffer
	err = tpl.Execute(&buf, map[string]interface{}{
		"Name":        jd.Name,
		"Partition":   jd.Partition,
		"Nodes":       jd.Nodes,
		"Output":      jd.Output,
		"Error":       jd.Error,
		"Reservation": jd.Reservation,
		"Time":        jd.TimeLimit(),
		"Memory":      jd.Memory(),
		"Nice":        jd.Nice,
		"Setup":       jd.Setup,
		"Commands":    jd.Commands,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering job script: %w", err)
	}
	return buf.Bytes(), nil
}

// Submit writes the job script of jd and submits it with sbatch, on relay
// when it is not empty. A failing sbatch is returned as an error.
func (b *Backend) Submit(ctx context.Context, jd *compute.JobDescription, relay string) (*compute.Submission, error) {
	script, err := b.Script(jd)
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFile(jd.Script, script, ScriptMode); err != nil {
		return nil, fmt.Errorf("writing job script: %w", err)
	}

	out, err := b.Runner.Run(ctx, relay, []string{b.submitCmd(), jd.Script})
	if err != nil {
		return nil, err
	}

	id := extractID(string(out))
	if id == "" {
		b.Log.Warn("Could not parse job id from sbatch output", "script", jd.Script, "output", string(out))
	}
	return &compute.Submission{JobID: id, Script: jd.Script, Relay: relay}, nil
}

// CountJobs counts the jobs listed by squeue for f.
func (b *Backend) CountJobs(ctx context.Context, f compute.JobFilter) (int, error) {
	args := []string{b.queueCmd(), "--noheader"}
	if f.User != "" {
		args = append(args, "-u", f.User)
	}
	if f.State != "" {
		args = append(args, "-t", f.State)
	}
	if f.Nodes != "" {
		args = append(args, "-w", f.Nodes)
	}
	out, err := b.Runner.Run(ctx, "", args)
	if err != nil {
		return 0, err
	}
	return countLines(string(out)), nil
}

func (b *Backend) submitCmd() string {
	if b.SubmitCmd == "" {
		return "sbatch"
	}
	return b.SubmitCmd
}

func (b *Backend) queueCmd() string {
	if b.QueueCmd == "" {
		return "squeue"
	}
	return b.QueueCmd
}

var jobID = regexp.MustCompile(`Submitted batch job ([0-9]+)`)

// extractID extracts the job id from the response returned by the `sbatch` command.
// Example response:
// Submitted batch job 2
func extractID(in string) string {
	m := jobID.FindStringSubmatch(in)
	if m == nil {
		return ""
	}
	if _, err := strconv.Atoi(m[1]); err != nil {
		return ""
	}
	return m[1]
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
