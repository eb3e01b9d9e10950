package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beamline/autoproc/logger"
	"github.com/ghodss/yaml"
)

// Config describes configuration for autoproc.
type Config struct {
	Crystallography Crystallography `json:"crystallography"`
	Slurm           Slurm           `json:"slurm"`
	Dispatch        Dispatch        `json:"dispatch"`
	Scan            Scan            `json:"scan"`
	Metadata        Metadata        `json:"metadata"`
	Journal         Journal         `json:"journal"`
	Metrics         Metrics         `json:"metrics"`
	Logger          logger.Config   `json:"logger"`

	// Directory holding the built-in templates. When empty they are written
	// to "<processed_directory>/templates" on demand.
	TemplatesDir string `json:"templates_dir"`

	// Filled in at startup from the beamtime metadata record, unless set
	// explicitly.
	User              string `json:"user"`
	BeamtimeID        string `json:"beamtimeId"`
	ReservedNodes     string `json:"reserved_nodes"`
	SSHPrivateKeyPath string `json:"sshPrivateKeyPath"`
	SSHPublicKeyPath  string `json:"sshPublicKeyPath"`
	SlurmPartition    string `json:"slurmPartition"`
}

// Crystallography describes where data lives and how the processing
// parameter files are derived.
type Crystallography struct {
	RawDirectory       string `json:"raw_directory"`
	ProcessedDirectory string `json:"processed_directory"`
	// Beam centre in pixels. Zero means "read it from info.txt".
	ORGX float64 `json:"ORGX"`
	ORGY float64 `json:"ORGY"`
	// Added to the detector distance from info.txt, in mm.
	DistanceOffset float64 `json:"distance_offset"`
	// Unit cell file for indexing serial data. When empty a *.cell or *.pdb
	// file next to the data is used.
	CellFile   string `json:"cell_file"`
	DataH5Path string `json:"data_h5path"`

	GeometryTemplate  string `json:"geometry_for_processing"`
	XDSTemplate       string `json:"XDS_INP_template"`
	XDSWedgesTemplate string `json:"XDS_INP_wedges_template"`

	RotationalCommand string `json:"command_for_processing_rotational"`
	AutoPROCCommand   string `json:"command_for_autoproc"`
	// Pause between the two XDS passes of a wedge job.
	WedgeSettleTime Duration `json:"wedge_settle_time"`

	Serial Serial `json:"serial"`
}

// Serial configures the serial crystallography pipeline.
type Serial struct {
	// Frames handled per chunk.
	ChunkSize int `json:"chunk_size"`
	// Lines per split event list, one job per list.
	SplitLines int `json:"split_lines"`
	// Fallback indexing method when info.txt has none.
	IndexingMethod string   `json:"indexing_method"`
	Threads        int      `json:"threads"`
	Options        []string `json:"indexamajig_options"`
}

// Slurm configures job scripts and the resource profiles.
type Slurm struct {
	// Reserved-node jobs above this count route to the shared partition.
	ReservedNodeJobLimit int `json:"reserved_node_job_limit"`
	// Partition used when the reservation is overloaded.
	SharedPartition string `json:"shared_partition"`
	// Reservation value naming the unrestricted cluster pool.
	PoolSentinel string `json:"pool_sentinel"`
	Pool         Pool   `json:"pool"`

	// Setup lines for each pipeline, placed before the commands.
	Setup       []string `json:"setup"`
	WedgeSetup  []string `json:"wedge_setup"`
	SerialSetup []string `json:"serial_setup"`

	// Job script template. Empty means built-in.
	Template string `json:"template"`
	Sbatch   string `json:"sbatch"`
	Squeue   string `json:"squeue"`
	SSH      SSH    `json:"ssh"`
}

// Pool is the unrestricted-pool profile.
type Pool struct {
	Memory     string  `json:"memory"`
	Nice       int     `json:"nice"`
	Rotational PoolJob `json:"rotational"`
	Wedge      PoolJob `json:"wedge"`
	Serial     PoolJob `json:"serial"`
}

// PoolJob holds the per-pipeline pool partition and time limit.
type PoolJob struct {
	Partition string   `json:"partition"`
	Time      Duration `json:"time"`
}

// SSH configures the relay to the login node.
type SSH struct {
	Disabled       bool     `json:"disabled"`
	Port           int      `json:"port"`
	ConnectTimeout Duration `json:"connect_timeout"`
}

// Dispatch configures the per-folder state machine.
type Dispatch struct {
	MaxPendingJobs int `json:"max_pending_jobs"`
	// When set, folders are skipped while the user has more than
	// MaxPendingJobs pending jobs. Otherwise the condition is only logged.
	StrictBackpressure bool `json:"strict_backpressure"`
	Force              bool `json:"force"`
	// Route every job to the unrestricted pool.
	Pool bool `json:"pool"`
}

// Scan configures the polling loop.
type Scan struct {
	Interval     Duration `json:"interval"`
	WaitInterval Duration `json:"wait_interval"`
	WaitTimeout  Duration `json:"wait_timeout"`
}

// Metadata configures the beamtime metadata lookup.
type Metadata struct {
	Pattern   string `json:"pattern"`
	Recursive bool   `json:"recursive"`
}

// Journal configures the submission journal.
type Journal struct {
	Path     string `json:"path"`
	Disabled bool   `json:"disabled"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Address string `json:"address"`
}

// DefaultConfig returns configuration with simple defaults.
func DefaultConfig() Config {
	return Config{
		Crystallography: Crystallography{
			DataH5Path:        "/entry/data/data",
			RotationalCommand: "xds_par",
			AutoPROCCommand:   "process",
			WedgeSettleTime:   Duration(10 * time.Second),
			Serial: Serial{
				ChunkSize:      1000,
				SplitLines:     250,
				IndexingMethod: "mosflm-latt-nocell",
				Threads:        80,
				Options: []string{
					"--int-radius=3,6,8",
					"--peaks=peakfinder8",
					"--min-snr=8",
					"--min-res=10",
					"--max-res=1200",
					"--threshold=5",
					"--min-pix-count=1",
					"--max-pix-count=10",
					"--min-peaks=15",
					"--local-bg-radius=3",
				},
			},
		},
		Slurm: Slurm{
			ReservedNodeJobLimit: 25,
			SharedPartition:      "allcpu,upex,short",
			PoolSentinel:         "maxwell",
			Pool: Pool{
				Memory: "500000MB",
				Nice:   100,
				Rotational: PoolJob{
					Partition: "allcpu,upex,short",
					Time:      Duration(8 * time.Hour),
				},
				Wedge: PoolJob{
					Partition: "allcpu,upex",
					Time:      Duration(12 * time.Hour),
				},
				Serial: PoolJob{
					Partition: "allcpu,upex,short",
					Time:      Duration(4 * time.Hour),
				},
			},
			Setup:       []string{"source /etc/profile.d/modules.sh", "module load xray autoproc"},
			WedgeSetup:  []string{"source /etc/profile.d/modules.sh", "module load xray"},
			SerialSetup: []string{"source /etc/profile.d/modules.sh", "module load maxwell xray crystfel"},
			Sbatch:      "sbatch",
			Squeue:      "squeue",
			SSH: SSH{
				Port:           22,
				ConnectTimeout: Duration(10 * time.Second),
			},
		},
		Dispatch: Dispatch{
			MaxPendingJobs: 200,
		},
		Scan: Scan{
			Interval:     Duration(2 * time.Second),
			WaitInterval: Duration(500 * time.Millisecond),
			WaitTimeout:  Duration(30 * time.Second),
		},
		Metadata: Metadata{
			Pattern: "beamtime-metadata*.json",
		},
		Logger: logger.DefaultConfig(),
	}
}

// Validate checks that the settings needed to start scanning are present.
func (c Config) Validate() error {
	switch {
	case c.Crystallography.RawDirectory == "":
		return fmt.Errorf("crystallography.raw_directory is required")
	case c.Crystallography.ProcessedDirectory == "":
		return fmt.Errorf("crystallography.processed_directory is required")
	case c.Dispatch.MaxPendingJobs < 0:
		return fmt.Errorf("dispatch.max_pending_jobs must not be negative")
	case c.Slurm.ReservedNodeJobLimit < 0:
		return fmt.Errorf("slurm.reserved_node_job_limit must not be negative")
	case c.Crystallography.Serial.ChunkSize <= 0:
		return fmt.Errorf("crystallography.serial.chunk_size must be positive")
	case c.Crystallography.Serial.SplitLines <= 0:
		return fmt.Errorf("crystallography.serial.split_lines must be positive")
	}
	return nil
}

// ValidateRuntime checks the fields filled in from the beamtime metadata.
// Jobs need an account, and a reservation needs the partition it lives in.
func (c Config) ValidateRuntime() error {
	switch {
	case c.User == "":
		return fmt.Errorf("no user account, set user or userAccount in the beamtime metadata")
	case c.ReservedNodes != "" && c.ReservedNodes != c.Slurm.PoolSentinel && c.SlurmPartition == "":
		return fmt.Errorf("reserved nodes %s have no slurm partition", c.ReservedNodes)
	}
	return nil
}

// JournalPath returns the configured journal location, defaulting to
// "autoproc.db" inside the processed directory.
func (c Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Crystallography.ProcessedDirectory, "autoproc.db")
}

// LockPath is the file locked by a running scanner.
func (c Config) LockPath() string {
	return filepath.Join(c.Crystallography.ProcessedDirectory, ".autoproc.lock")
}

// ToYaml formats the configuration into YAML and returns the bytes.
func (c Config) ToYaml() ([]byte, error) {
	return yaml.Marshal(c)
}

// Parse parses a YAML doc into the given Config instance.
func Parse(raw []byte, conf *Config) error {
	return yaml.Unmarshal(raw, conf)
}

// ParseFile parses an autoproc config file, which is formatted in YAML,
// and returns a Config struct.
func ParseFile(relpath string, conf *Config) error {
	if relpath == "" {
		return nil
	}

	// Try to get absolute path. If it fails, fall back to relative path.
	path, abserr := filepath.Abs(relpath)
	if abserr != nil {
		path = relpath
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config at path %s: %w", path, err)
	}

	if err := Parse(source, conf); err != nil {
		return fmt.Errorf("parsing config at path %s: %w", path, err)
	}
	return nil
}
