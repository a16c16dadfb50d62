// Package pipeline runs folder encryption jobs: it validates the source, sequences the
// packaging and cipher stages around a temporary archive, classifies what went wrong
// and always cleans up after itself.
package pipeline

import (
	"context"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/internal/backend"
	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/fileutil"
	"github.com/idelchi/foldenc/internal/logging"
)

// Options tune an Orchestrator.
type Options struct {
	// Extension of encrypted files, DefaultExtension if empty.
	Extension string
	// Force replaces an existing output instead of failing with ErrOutputExists.
	Force bool
	// Excludes are passed to the packager.
	Excludes []string
}

// Orchestrator runs jobs on one backend strategy.
// It holds no per-job state and may run several jobs at once,
// as long as their temporary archives do not collide.
type Orchestrator struct {
	strategy *backend.Strategy
	opts     Options
	logger   zerolog.Logger
}

// New returns an Orchestrator running jobs on strategy.
func New(strategy *backend.Strategy, opts Options) *Orchestrator {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}

	return &Orchestrator{
		strategy: strategy,
		opts:     opts,
		logger:   logging.GetLogger("pipeline").With().Str("backend", string(strategy.Name)).Logger(),
	}
}

// Strategy returns the strategy jobs run on.
func (o *Orchestrator) Strategy() *backend.Strategy {
	return o.strategy
}

// NewJob derives a job for source. The password is referenced, not copied.
func (o *Orchestrator) NewJob(mode Mode, source string, password []byte) (Job, error) {
	return newJob(mode, source, o.opts.Extension, o.strategy.Integrated(), password)
}

// Encrypt encrypts folder into <parent>/<name><ext>.
func (o *Orchestrator) Encrypt(ctx context.Context, folder string, password []byte) Result {
	return o.runSource(ctx, Encrypt, folder, password)
}

// Decrypt decrypts archive into <parent>/<name without ext>.
func (o *Orchestrator) Decrypt(ctx context.Context, archive string, password []byte) Result {
	return o.runSource(ctx, Decrypt, archive, password)
}

func (o *Orchestrator) runSource(ctx context.Context, mode Mode, source string, password []byte) Result {
	job, err := o.NewJob(mode, source, password)
	if err != nil {
		if jobErr, ok := errors.As(err); ok {
			err = jobErr.WithStage(string(StageValidating))
		}

		return Result{Job: Job{Mode: mode, Source: source}, Err: err}
	}

	return o.Run(ctx, job)
}

// Submit runs job on its own goroutine. The returned channel yields exactly one Result
// and is closed afterwards.
func (o *Orchestrator) Submit(ctx context.Context, job Job) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		defer close(results)

		results <- o.Run(ctx, job)
	}()

	return results
}

// Run executes job and blocks until it is finished, including cleanup.
//
// Stages write into a staging folder next to the output. The output path is only
// touched once every stage succeeded, so a failed job leaves an existing output as it was.
//
// The context is honoured up to the point a backend is started; a running backend
// is never interrupted.
func (o *Orchestrator) Run(ctx context.Context, job Job) Result {
	start := time.Now()
	logger := o.logger.With().Str("mode", job.Mode.String()).Str("source", job.Source).Logger()
	result := Result{Job: job}

	work, err := o.validate(ctx, job)
	if err != nil {
		logger.Debug().Err(err).Msg("Validation failed")

		result.Err = err
		result.Duration = time.Since(start)

		return result
	}

	stageErr := o.runStages(ctx, job, work, logger)
	if stageErr == nil {
		stageErr = o.commit(job, work, logger)
	}

	cleanupErr := o.cleanup(work, logger)

	if stageErr != nil {
		result.Err = stageErr

		if cleanupErr != nil {
			result.CleanupErr = cleanupErr
			result.Err = stderrors.Join(stageErr, cleanupErr)
		}

		result.Duration = time.Since(start)

		logger.Info().Err(result.Err).Msg("Job failed")

		return result
	}

	result.CleanupErr = cleanupErr
	result.Message = successMessage(job)

	if size, err := fileutil.Size(o.strategy.Fs, job.Output); err == nil {
		result.OutputSize = size
	} else {
		logger.Debug().Err(err).Msg("Could not measure output")
	}

	result.Duration = time.Since(start)

	logger.Info().Str("output", job.Output).Dur("duration", result.Duration).Msg("Job succeeded")

	return result
}

// workspace is what a job holds on disk while it runs.
type workspace struct {
	// artifact is the temporary archive, nil for integrated backends.
	artifact *fileutil.Artifact
	// staging is a private folder next to the output.
	staging string
}

// produced is the folder the stages write their result into.
func (w *workspace) produced() string {
	return filepath.Join(w.staging, "new")
}

// previous is where an output replaced with Force is parked until the job is done.
func (w *workspace) previous() string {
	return filepath.Join(w.staging, "old")
}

// validate checks the source and the output, and reserves the temporary archive
// and the staging folder.
func (o *Orchestrator) validate(ctx context.Context, job Job) (*workspace, error) {
	fsys := o.strategy.Fs
	stage := string(StageValidating)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, msgCancelled).WithStage(stage)
	}

	info, err := fsys.Stat(job.Source)

	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return nil, errors.Newf(errors.ErrInvalidSource, "%q does not exist", job.Source).WithStage(stage)
	case err != nil:
		return nil, errors.Wrapf(err, errors.ErrInvalidSource, "cannot access %q", job.Source).WithStage(stage)
	case job.Mode == Encrypt && !info.IsDir():
		return nil, errors.Newf(errors.ErrInvalidSource, "%q is not a folder", job.Source).WithStage(stage)
	case job.Mode == Decrypt && !info.Mode().IsRegular():
		return nil, errors.Newf(errors.ErrInvalidSource, "%q is not a file", job.Source).WithStage(stage)
	}

	if err := o.checkOutput(job, stage); err != nil {
		return nil, err
	}

	work := &workspace{}

	if job.Artifact != "" {
		artifact, err := fileutil.Reserve(fsys, job.Artifact)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrIOFailure, "cannot create temporary file").WithStage(stage)
		}

		work.artifact = artifact
	}

	parent, base := filepath.Split(job.Output)

	staging, err := afero.TempDir(fsys, filepath.Clean(parent), "."+base+".foldenc-")
	if err == nil {
		work.staging = staging
		err = fsys.Mkdir(work.produced(), 0o700)
	}

	if err != nil {
		if staging != "" {
			fsys.RemoveAll(staging) //nolint:errcheck // best-effort cleanup
		}

		work.artifact.Remove() //nolint:errcheck // best-effort cleanup

		return nil, errors.Wrap(err, errors.ErrIOFailure, "cannot create staging folder").WithStage(stage)
	}

	return work, nil
}

// checkOutput fails with ErrOutputExists when something is at the output path and
// Force is off.
func (o *Orchestrator) checkOutput(job Job, stage string) error {
	exists, err := fileutil.Exists(o.strategy.Fs, job.Output)
	if err != nil {
		return errors.Wrap(err, errors.ErrIOFailure, "checking output").WithStage(stage)
	}

	if exists && !o.opts.Force {
		return errors.Newf(errors.ErrOutputExists, "%q already exists (use --force to replace it)", job.Output).
			WithStage(stage)
	}

	return nil
}

func (o *Orchestrator) runStages(ctx context.Context, job Job, work *workspace, logger zerolog.Logger) error {
	s := o.strategy
	signatures := s.WrongPasswordSignatures()
	produced := work.produced()
	staged := filepath.Join(produced, filepath.Base(job.Output))

	step := func(stage Stage, run func() error) error {
		logger.Debug().Str("stage", string(stage)).Msg("Stage started")

		done := logging.LogOperationStart(logger, string(stage))
		defer done()

		if err := classify(stage, run(), signatures); err != nil {
			return err
		}

		return nil
	}

	switch {
	case s.Integrated() && job.Mode == Encrypt:
		return step(StageEnciphering, func() error {
			return s.Archiver.Create(ctx, job.Source, staged, job.password, o.opts.Excludes)
		})
	case s.Integrated():
		if err := step(StageDeciphering, func() error {
			return s.Archiver.Extract(ctx, job.Source, produced, job.password)
		}); err != nil {
			return err
		}
	case job.Mode == Encrypt:
		if err := step(StagePacking, func() error {
			return s.Packager.Pack(ctx, job.Source, work.artifact.Path, o.opts.Excludes)
		}); err != nil {
			return err
		}

		return step(StageEnciphering, func() error {
			return s.Cipher.Encrypt(ctx, work.artifact.Path, staged, job.password)
		})
	default:
		if err := step(StageDeciphering, func() error {
			return s.Cipher.Decrypt(ctx, job.Source, work.artifact.Path, job.password)
		}); err != nil {
			return err
		}

		if err := step(StageUnpacking, func() error {
			return s.Packager.Unpack(ctx, work.artifact.Path, produced)
		}); err != nil {
			return err
		}
	}

	return o.checkRoot(job, produced)
}

// checkRoot requires the extracted archive to hold exactly the expected folder.
func (o *Orchestrator) checkRoot(job Job, produced string) error {
	want := filepath.Base(job.Output)

	entries, err := afero.ReadDir(o.strategy.Fs, produced)
	if err != nil {
		return errors.Wrap(err, errors.ErrIOFailure, "reading staging folder").WithStage(string(StageUnpacking))
	}

	if len(entries) == 1 && entries[0].Name() == want && entries[0].IsDir() {
		return nil
	}

	found := make([]string, len(entries))
	for i, entry := range entries {
		found[i] = entry.Name()
	}

	return errors.Newf(errors.ErrPackagingFailed,
		"archive root does not match: expected folder %q, found %q", want, found).
		WithStage(string(StageUnpacking))
}

// commit moves the staged output into place. With Force, an existing output is parked
// in the staging folder first and restored if the move fails.
func (o *Orchestrator) commit(job Job, work *workspace, logger zerolog.Logger) error {
	fsys := o.strategy.Fs
	stage := string(StageCommitting)
	staged := filepath.Join(work.produced(), filepath.Base(job.Output))

	if err := o.checkOutput(job, stage); err != nil {
		return err
	}

	exists, err := fileutil.Exists(fsys, job.Output)
	if err != nil {
		return errors.Wrap(err, errors.ErrIOFailure, "checking output").WithStage(stage)
	}

	if exists {
		if err := fsys.Rename(job.Output, work.previous()); err != nil {
			return errors.Wrapf(err, errors.ErrIOFailure, "cannot move existing %q aside", job.Output).WithStage(stage)
		}

		logger.Debug().Str("output", job.Output).Msg("Replacing existing output")
	}

	if err := fsys.Rename(staged, job.Output); err != nil {
		if exists {
			if restoreErr := fsys.Rename(work.previous(), job.Output); restoreErr != nil {
				logger.Warn().Err(restoreErr).Str("previous", work.previous()).Msg("Previous output left in staging folder")
			}
		}

		return errors.Wrapf(err, errors.ErrIOFailure, "cannot move output to %q", job.Output).WithStage(stage)
	}

	return nil
}

// cleanup removes the temporary archive and the staging folder, including an output
// replaced with Force.
func (o *Orchestrator) cleanup(work *workspace, logger zerolog.Logger) error {
	var errs []error

	if err := work.artifact.Remove(); err != nil {
		logger.Warn().Err(err).Str("artifact", work.artifact.Path).Msg("Temporary file left behind")

		errs = append(errs, errors.Wrap(err, errors.ErrCleanupFailed, "Failed to delete temporary file").
			WithStage(string(StageCleanup)))
	}

	if err := o.strategy.Fs.RemoveAll(work.staging); err != nil {
		logger.Warn().Err(err).Str("staging", work.staging).Msg("Staging folder left behind")

		errs = append(errs, errors.Wrap(err, errors.ErrCleanupFailed, "Failed to delete staging folder").
			WithStage(string(StageCleanup)))
	}

	return stderrors.Join(errs...)
}

func successMessage(job Job) string {
	if job.Mode == Decrypt {
		return "File has been decrypted to: " + job.Output
	}

	return "Folder has been encrypted to: " + job.Output
}
