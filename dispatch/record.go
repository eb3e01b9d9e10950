package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/util/fsutil"
	multierror "github.com/hashicorp/go-multierror"
)

// removeAll is replaced in tests.
var removeAll = os.RemoveAll

// FlagFile marks an output directory whose jobs were all submitted.
const FlagFile = "flag.txt"

// PartialMarkers are files left by an earlier XDS run in an output
// directory. Their presence counts as done.
var PartialMarkers = []string{"CORRECT.LP", "XYCORR.LP"}

// Record is the processing state of one raw data folder: its mirrored
// output directory and the completion flag inside it.
type Record struct {
	Folder string
	Dir    string
}

// NewRecord maps folder, which must lie strictly inside rawRoot, to the
// same relative path below processedRoot. rawRoot itself is rejected, it
// would map onto processedRoot.
func NewRecord(rawRoot, processedRoot, folder string) (*Record, error) {
	rel, err := filepath.Rel(filepath.Clean(rawRoot), filepath.Clean(folder))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("folder %s is outside the raw directory %s", folder, rawRoot)
	}
	if rel == "." {
		return nil, fmt.Errorf("refusing to process the raw directory %s itself", rawRoot)
	}
	return &Record{
		Folder: folder,
		Dir:    filepath.Join(processedRoot, rel),
	}, nil
}

// Ensure creates the output directory.
func (r *Record) Ensure() error {
	return fsutil.EnsureDir(r.Dir)
}

// Flagged reports whether the completion flag is set.
func (r *Record) Flagged() bool {
	return fsutil.Exists(filepath.Join(r.Dir, FlagFile))
}

// Partial returns the first partial-result marker present, or "".
func (r *Record) Partial() string {
	for _, m := range PartialMarkers {
		if fsutil.Exists(filepath.Join(r.Dir, m)) {
			return m
		}
	}
	return ""
}

// SetFlag sets the completion flag.
func (r *Record) SetFlag() error {
	return fsutil.Touch(filepath.Join(r.Dir, FlagFile))
}

// Clear removes everything inside the output directory. Entries which
// cannot be removed are logged and skipped; their errors are returned
// together once every entry was tried.
func (r *Record) Clear(log *logger.Logger) error {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", r.Dir, err)
	}
	var result *multierror.Error
	for _, e := range entries {
		p := filepath.Join(r.Dir, e.Name())
		if err := removeAll(p); err != nil {
			log.Warn("Failed to delete", "path", p, "error", err)
			result = multierror.Append(result, err)
		}
	}
	log.Info("Cleared old results", "dir", r.Dir)
	return result.ErrorOrNil()
}
