// Package batch runs a handler over many mail files in order and tallies
// what happened to each.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// Extension is the suffix collected when walking a directory.
const Extension = ".eml"

// Status is the result of handling one file.
type Status string

// File statuses.
const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusHalted    Status = "halted"
	StatusFailed    Status = "failed"
)

// Handler processes one file. A non-nil error marks the file failed
// whatever status is returned.
type Handler func(ctx context.Context, path string) (Status, error)

// Result summarizes a batch run.
type Result struct {
	JobID          string
	TotalFiles     int
	ProcessedCount int
	SkippedCount   int
	HaltedCount    int
	FailedCount    int
	StartedAt      time.Time
	CompletedAt    time.Time
	Cancelled      bool
	Errors         []FileError
}

// Success reports whether every file ran without error.
func (r *Result) Success() bool {
	return r.FailedCount == 0 && !r.Cancelled
}

// Err returns nil on success, otherwise an error naming the failed files.
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	if len(r.Errors) == 0 {
		return fmt.Errorf("batch cancelled after %d of %d files", r.done(), r.TotalFiles)
	}
	paths := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		paths[i] = e.FilePath
	}
	return fmt.Errorf("%d of %d files failed: %s", r.FailedCount, r.TotalFiles, strings.Join(paths, ", "))
}

func (r *Result) done() int {
	return r.ProcessedCount + r.SkippedCount + r.HaltedCount + r.FailedCount
}

// FileError records an error for a specific file.
type FileError struct {
	FilePath string
	Error    string
}

// Runner handles files one at a time. Messages within a batch may share
// participants, so files are never run concurrently.
type Runner struct {
	logger   logging.Logger
	progress *Progress
	onUpdate func(*Progress)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithProgressCallback is called after each progress change.
func WithProgressCallback(fn func(*Progress)) Option {
	return func(r *Runner) {
		r.onUpdate = fn
	}
}

// NewRunner creates a new batch runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.F("component", "batch"))
	return r
}

// Progress returns the progress tracker of the current or last run.
func (r *Runner) Progress() *Progress {
	return r.progress
}

// Run calls h for each file in order. A cancelled context stops the run
// before the next file.
func (r *Runner) Run(ctx context.Context, files []string, h Handler) *Result {
	result := &Result{
		JobID:      uuid.NewString(),
		TotalFiles: len(files),
		StartedAt:  time.Now(),
		Errors:     []FileError{},
	}

	r.progress = NewProgress(len(files))
	if r.onUpdate != nil {
		r.progress.SetOnUpdate(r.onUpdate)
	}
	r.progress.Start()

	log := r.logger.With(logging.F("job_id", result.JobID))
	log.Debug("Batch started", logging.F("files", len(files)))

	for _, file := range files {
		if ctx.Err() != nil {
			result.Cancelled = true
			r.progress.Cancel()
			log.Warn("Batch cancelled", logging.F("remaining", len(files)-result.done()))
			break
		}

		r.progress.SetCurrentFile(file)
		status, err := h(ctx, file)
		if err != nil {
			status = StatusFailed
			result.Errors = append(result.Errors, FileError{FilePath: file, Error: err.Error()})
		}
		r.record(result, status)
	}

	result.CompletedAt = time.Now()
	if !result.Cancelled {
		r.progress.Complete(result.Success())
	}
	log.Debug("Batch finished",
		logging.F("processed", result.ProcessedCount),
		logging.F("skipped", result.SkippedCount),
		logging.F("halted", result.HaltedCount),
		logging.F("failed", result.FailedCount),
		logging.F("duration", result.CompletedAt.Sub(result.StartedAt)),
	)
	return result
}

func (r *Runner) record(result *Result, status Status) {
	switch status {
	case StatusSkipped:
		result.SkippedCount++
	case StatusHalted:
		result.HaltedCount++
	case StatusFailed:
		result.FailedCount++
	default:
		status = StatusProcessed
		result.ProcessedCount++
	}
	r.progress.Record(status)
}

// Discover expands paths into mail files. Files are kept as given whatever
// their name; directories are walked recursively for *.eml. Order follows
// the arguments, directory entries sorted by name, and repeats are dropped.
func Discover(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		key := filepath.Clean(p)
		if !seen[key] {
			seen[key] = true
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			// Reported by the handler as a failed file.
			add(path)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), Extension) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}
	return files, nil
}
