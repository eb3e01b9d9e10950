// Package metadata locates and parses the beamtime metadata record.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/util/fsutil"
)

// DefaultPattern matches beamtime metadata records.
const DefaultPattern = "beamtime-metadata*.json"

// ErrNotFound is returned when no valid metadata record exists.
var ErrNotFound = errors.New("no valid beamtime-metadata*.json file found with required fields")

// Record is the subset of the beamtime metadata used for dispatching.
type Record struct {
	BeamtimeID        string
	CorePath          string
	ReservedNodes     []string
	SSHPrivateKeyPath string
	SSHPublicKeyPath  string
	UserAccount       string
	SlurmPartition    string
	// File the record was read from.
	File string
}

// Reservation returns the reserved nodes joined by commas, as expected by
// squeue and sbatch.
func (r *Record) Reservation() string {
	return strings.Join(r.ReservedNodes, ",")
}

type onlineAnalysis struct {
	ReservedNodes     []string `json:"reservedNodes"`
	SSHPrivateKeyPath string   `json:"sshPrivateKeyPath"`
	SSHPublicKeyPath  string   `json:"sshPublicKeyPath"`
	UserAccount       string   `json:"userAccount"`
	SlurmPartition    string   `json:"slurmPartition"`
}

type document struct {
	BeamtimeID     json.RawMessage `json:"beamtimeId"`
	CorePath       string          `json:"corePath"`
	OnlineAnalysis *onlineAnalysis `json:"onlineAnalysis"`
}

// Resolver finds the metadata record of a beamtime.
type Resolver struct {
	// Glob pattern, DefaultPattern when empty.
	Pattern string
	// Search the whole beamtime tree instead of its top directory only.
	Recursive bool
	Log       *logger.Logger
}

// BaseDir returns the beamtime directory of a raw data directory: the part
// of the path before "/raw".
func BaseDir(rawDirectory string) string {
	if i := strings.Index(rawDirectory, "/raw"); i >= 0 {
		return rawDirectory[:i]
	}
	return rawDirectory
}

// Resolve returns the first valid record, in sorted path order, found in the
// beamtime directory of rawDirectory. Invalid candidates are logged and
// skipped.
func (r *Resolver) Resolve(rawDirectory string) (*Record, error) {
	base := BaseDir(rawDirectory)
	if !fsutil.IsDir(base) {
		return nil, fmt.Errorf("the base path %s does not exist", base)
	}

	pattern := r.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if r.Recursive {
		pattern = filepath.Join(base, "**", pattern)
	} else {
		pattern = filepath.Join(base, pattern)
	}

	files, err := fsutil.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", pattern, err)
	}

	for _, f := range files {
		rec, err := ParseFile(f.Abs)
		if err != nil {
			r.Log.Info("Skipping metadata candidate", "file", f.Abs, "reason", err)
			continue
		}
		return rec, nil
	}
	return nil, ErrNotFound
}

// ParseFile parses the metadata record at path.
func ParseFile(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := Parse(b)
	if err != nil {
		return nil, err
	}
	rec.File = path
	return rec, nil
}

// Parse parses a metadata document. beamtimeId and onlineAnalysis are
// required.
func Parse(b []byte) (*Record, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(doc.BeamtimeID) == 0 || string(doc.BeamtimeID) == "null" {
		return nil, fmt.Errorf("missing beamtimeId")
	}
	if doc.OnlineAnalysis == nil {
		return nil, fmt.Errorf("missing onlineAnalysis")
	}

	// beamtimeId is a string in newer records and a number in older ones
	var id string
	if err := json.Unmarshal(doc.BeamtimeID, &id); err != nil {
		var n json.Number
		if err := json.Unmarshal(doc.BeamtimeID, &n); err != nil {
			return nil, fmt.Errorf("invalid beamtimeId %s", doc.BeamtimeID)
		}
		id = n.String()
	}

	oa := doc.OnlineAnalysis
	return &Record{
		BeamtimeID:        id,
		CorePath:          doc.CorePath,
		ReservedNodes:     oa.ReservedNodes,
		SSHPrivateKeyPath: oa.SSHPrivateKeyPath,
		SSHPublicKeyPath:  oa.SSHPublicKeyPath,
		UserAccount:       oa.UserAccount,
		SlurmPartition:    oa.SlurmPartition,
	}, nil
}

// PrivateKeyPath resolves the record's private key path, which is relative
// to the beamtime directory.
func (r *Record) PrivateKeyPath(rawDirectory string) string {
	if r.SSHPrivateKeyPath == "" || filepath.IsAbs(r.SSHPrivateKeyPath) {
		return r.SSHPrivateKeyPath
	}
	return filepath.Join(BaseDir(rawDirectory), r.SSHPrivateKeyPath)
}
