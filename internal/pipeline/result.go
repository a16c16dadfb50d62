package pipeline

import "time"

// Result represents the outcome of one job.
type Result struct {
	// Job that was run.
	Job Job

	// Message is the success line, empty on failure.
	Message string

	// Err is the classified failure; errors.GetErrorCode and errors.UserMessage read it.
	Err error

	// CleanupErr is set when the temporary archive could not be removed.
	// It never turns a success into a failure.
	CleanupErr error

	// OutputSize in bytes, the sum of all files for a decrypted folder.
	OutputSize int64

	// Duration of the whole job.
	Duration time.Duration
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
