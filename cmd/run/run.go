package run

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/beamline/autoproc/cmd/version"
	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/compute/slurm"
	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/dispatch"
	"github.com/beamline/autoproc/journal"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/metadata"
	"github.com/beamline/autoproc/metrics"
	"github.com/beamline/autoproc/scan"
	"github.com/beamline/autoproc/util"
	"github.com/beamline/autoproc/util/fsutil"
	"github.com/gofrs/flock"
)

// Run waits for the raw directory, resolves the beamtime metadata and
// processes folders as selected by opts. It blocks until the work is done
// or, when polling, until ctx is canceled or a signal is received.
func Run(ctx context.Context, conf config.Config, opts Options, log *logger.Logger) error {
	version.Log(log)

	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !opts.Offline && opts.Path == "" {
		return fmt.Errorf("online mode needs the folder to process, use --path or --offline")
	}

	ctx, cancel := util.SignalContext(ctx, time.Millisecond, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := conf.Crystallography
	sc := &scan.Scanner{
		Root:     c.RawDirectory,
		Interval: time.Duration(conf.Scan.Interval),
		Log:      log.Sub("scan"),
	}
	if err := sc.WaitForRoot(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if err := fsutil.EnsureDir(c.ProcessedDirectory); err != nil {
		return err
	}

	lock := flock.New(conf.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another autoproc instance is processing into %s", c.ProcessedDirectory)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release lock", "path", conf.LockPath(), "error", err)
		}
	}()

	if err := applyMetadata(&conf, log.Sub("metadata")); err != nil {
		return err
	}
	if err := conf.ValidateRuntime(); err != nil {
		return fmt.Errorf("invalid beamtime setup: %w", err)
	}

	if conf.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, conf.Metrics.Address, log.Sub("metrics")); err != nil {
				log.Error("Metrics server stopped", err)
			}
		}()
	}

	cluster, err := newCluster(conf, log.Sub("slurm"))
	if err != nil {
		return err
	}
	router := newRouter(conf, cluster, log.Sub("compute"))

	d := &dispatch.Dispatcher{
		Conf:   conf,
		Router: router,
		Guard:  router.Guard,
		Log:    log.Sub("dispatch"),
	}
	if !conf.Journal.Disabled {
		j, err := journal.Open(conf.JournalPath())
		if err != nil {
			log.Warn("Submission journal unavailable, continuing without it", "path", conf.JournalPath(), "error", err)
		} else {
			defer j.Close()
			d.Journal = j
		}
	}
	sc.Dispatcher = d

	return process(ctx, sc, opts)
}

func process(ctx context.Context, sc *scan.Scanner, opts Options) error {
	switch {
	case !opts.Offline:
		_, err := sc.Once(ctx, opts.Path)
		return err

	case opts.Blocks != "":
		patterns, err := scan.ReadWorklist(opts.Blocks)
		if err != nil {
			return err
		}
		if len(patterns) == 0 {
			return fmt.Errorf("worklist %s lists no runs", opts.Blocks)
		}
		if opts.Once {
			_, err := sc.Sweep(ctx, patterns)
			return err
		}
		return sc.Run(ctx, patterns)

	case opts.Once:
		_, err := sc.Sweep(ctx, nil)
		return err

	default:
		return sc.Run(ctx, nil)
	}
}

// applyMetadata fills the runtime fields of conf which are not set
// explicitly from the beamtime metadata record.
func applyMetadata(conf *config.Config, log *logger.Logger) error {
	raw := conf.Crystallography.RawDirectory
	r := &metadata.Resolver{
		Pattern:   conf.Metadata.Pattern,
		Recursive: conf.Metadata.Recursive,
		Log:       log,
	}
	rec, err := r.Resolve(raw)
	if err != nil {
		return fmt.Errorf("resolving beamtime metadata: %w", err)
	}

	setDefault(&conf.BeamtimeID, rec.BeamtimeID)
	setDefault(&conf.User, rec.UserAccount)
	setDefault(&conf.ReservedNodes, rec.Reservation())
	setDefault(&conf.SSHPrivateKeyPath, rec.PrivateKeyPath(raw))
	setDefault(&conf.SSHPublicKeyPath, rec.SSHPublicKeyPath)
	setDefault(&conf.SlurmPartition, rec.SlurmPartition)

	log.Info("Beamtime metadata",
		"file", rec.File,
		"beamtimeId", conf.BeamtimeID,
		"corePath", rec.CorePath,
		"reservedNodes", conf.ReservedNodes,
		"user", conf.User,
		"partition", conf.SlurmPartition,
	)
	return nil
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func newCluster(conf config.Config, log *logger.Logger) (*slurm.Backend, error) {
	s := conf.Slurm

	var runner slurm.Runner = slurm.LocalRunner{}
	if !s.SSH.Disabled {
		runner = &slurm.SSHRunner{
			User:    conf.User,
			KeyPath: conf.SSHPrivateKeyPath,
			Port:    s.SSH.Port,
			Timeout: time.Duration(s.SSH.ConnectTimeout),
		}
	}

	var tpl string
	if s.Template != "" {
		b, err := os.ReadFile(s.Template)
		if err != nil {
			return nil, fmt.Errorf("reading job script template: %w", err)
		}
		tpl = string(b)
	}

	b := slurm.NewBackend(runner, tpl, log)
	if s.Sbatch != "" {
		b.SubmitCmd = s.Sbatch
	}
	if s.Squeue != "" {
		b.QueueCmd = s.Squeue
	}
	return b, nil
}

func newRouter(conf config.Config, cluster compute.Cluster, log *logger.Logger) *compute.Router {
	s := conf.Slurm
	guard := &compute.Guard{
		Cluster:      cluster,
		Limit:        s.ReservedNodeJobLimit,
		PoolSentinel: s.PoolSentinel,
		Log:          log,
	}
	return &compute.Router{
		Cluster:         cluster,
		Guard:           guard,
		Partition:       conf.SlurmPartition,
		Reservation:     conf.ReservedNodes,
		SharedPartition: s.SharedPartition,
		PoolSentinel:    s.PoolSentinel,
		PoolMemory:      s.Pool.Memory,
		PoolNice:        s.Pool.Nice,
		ForcePool:       conf.Dispatch.Pool,
		Log:             log,
	}
}
