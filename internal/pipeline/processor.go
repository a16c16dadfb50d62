package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/idelchi/foldenc/internal/errors"
)

// BatchOptions tune a Processor.
type BatchOptions struct {
	// Parallel is the maximum number of jobs in flight, at least 1.
	Parallel int
	// Quiet suppresses the per-job success lines.
	Quiet bool
	// Delete removes each source after its job succeeded.
	Delete bool
	// Stdout and Stderr receive the progress lines, os.Stdout and os.Stderr if nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Processor runs one job per source with bounded parallelism and reports each result
// from a single printer goroutine.
type Processor struct {
	orch  *Orchestrator
	mode  Mode
	opts  BatchOptions
	locks keyedMutex
}

// NewProcessor creates a Processor running mode jobs on orch.
func NewProcessor(orch *Orchestrator, mode Mode, opts BatchOptions) *Processor {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return &Processor{orch: orch, mode: mode, opts: opts}
}

// Process runs a job per source.
// Returns the number of successful and failed jobs and the total output size.
//
//nolint:cyclop,gocognit // parallel processing pipeline with printer goroutine
func (p *Processor) Process(ctx context.Context, sources []string, password []byte) (processed, errored int, totalSize int64, err error) {
	results := make(chan Result, len(sources))

	group := errgroup.Group{}
	group.SetLimit(p.opts.Parallel)

	done := make(chan struct{})

	verb := "Encrypted"
	if p.mode == Decrypt {
		verb = "Decrypted"
	}

	fsys := p.orch.Strategy().Fs

	go func() {
		defer close(done)

		for result := range results {
			if result.Err != nil {
				errored++

				fmt.Fprintf(p.opts.Stderr, "Error processing %q: %s\n", result.Job.Source, errors.UserMessage(result.Err))

				continue
			}

			processed++

			totalSize += result.OutputSize

			if !p.opts.Quiet {
				fmt.Fprintf(p.opts.Stdout, "%s %q -> %q\n", verb, result.Job.Source, result.Job.Output)
			}

			if result.CleanupErr != nil {
				fmt.Fprintf(p.opts.Stderr, "Warning for %q: %s\n", result.Job.Source, errors.UserMessage(result.CleanupErr))
			}

			if p.opts.Delete {
				if err := fsys.RemoveAll(result.Job.Source); err != nil {
					fmt.Fprintf(p.opts.Stderr, "Error deleting %q: %v\n", result.Job.Source, err)
				} else if !p.opts.Quiet {
					fmt.Fprintf(p.opts.Stdout, "Deleted %q\n", result.Job.Source)
				}
			}
		}
	}()

	for _, source := range sources {
		group.Go(func() error {
			job, err := p.orch.NewJob(p.mode, source, password)
			if err != nil {
				results <- Result{Job: Job{Mode: p.mode, Source: source}, Err: err}

				return err
			}

			// Jobs sharing a temporary archive or an output must not overlap.
			unlock := p.locks.lock(lockKey(job))
			result := p.orch.Run(ctx, job)

			unlock()

			results <- result

			return result.Err
		})
	}

	err = group.Wait()

	close(results)

	<-done

	if err != nil {
		return processed, errored, totalSize, fmt.Errorf("processing sources: %w", err)
	}

	return processed, errored, totalSize, nil
}

func lockKey(job Job) string {
	if job.Artifact != "" {
		return job.Artifact
	}

	return job.Output
}

// keyedMutex serialises holders of the same key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex

	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()

	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}

	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}

	l.refs++
	k.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		k.mu.Lock()
		defer k.mu.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
	}
}
