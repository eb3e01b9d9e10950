// Package version holds build details, set at link time with -ldflags -X.
package version

import "fmt"

// Build and version details
var (
	GitCommit   = ""
	GitBranch   = ""
	GitUpstream = ""
	BuildDate   = ""
	Version     = "unknown"
)

var tpl = `git commit: %s
git branch: %s
git upstream: %s
build date: %s
version: %s`

// String formats a string with version details.
func String() string {
	return fmt.Sprintf(tpl, GitCommit, GitBranch, GitUpstream, BuildDate, Version)
}

// LogFields returns build and version information as logger key/value
// pairs. Empty details are left out.
func LogFields() []interface{} {
	fields := []interface{}{}
	add := func(k, v string) {
		if v != "" {
			fields = append(fields, k, v)
		}
	}
	add("GitCommit", GitCommit)
	add("GitBranch", GitBranch)
	add("GitUpstream", GitUpstream)
	add("BuildDate", BuildDate)
	add("Version", Version)
	return fields
}
