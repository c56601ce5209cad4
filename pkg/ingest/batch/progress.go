package batch

import (
	"sync"
	"time"
)

// Progress tracks the progress of a batch run. It is safe to read from
// another goroutine while the run updates it.
type Progress struct {
	mu sync.RWMutex

	// Counts
	TotalFiles     int
	DoneCount      int
	ProcessedCount int
	SkippedCount   int
	HaltedCount    int
	FailedCount    int

	// Current state
	CurrentFile string
	Status      string

	// Timing
	StartedAt time.Time
	UpdatedAt time.Time

	// Callbacks
	onUpdate func(*Progress)
}

// NewProgress creates a new progress tracker.
func NewProgress(totalFiles int) *Progress {
	return &Progress{
		TotalFiles: totalFiles,
		Status:     "pending",
		StartedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// SetOnUpdate sets a callback function called on each update.
func (p *Progress) SetOnUpdate(fn func(*Progress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Start marks the progress as started.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = "running"
	p.StartedAt = time.Now()
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// SetCurrentFile updates the current file being processed.
func (p *Progress) SetCurrentFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentFile = path
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// Record counts one finished file.
func (p *Progress) Record(status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch status {
	case StatusSkipped:
		p.SkippedCount++
	case StatusHalted:
		p.HaltedCount++
	case StatusFailed:
		p.FailedCount++
	default:
		p.ProcessedCount++
	}
	p.DoneCount++
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// Complete marks the progress as completed.
func (p *Progress) Complete(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		p.Status = "completed"
	} else {
		p.Status = "failed"
	}
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// Cancel marks the progress as cancelled.
func (p *Progress) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = "cancelled"
	p.UpdatedAt = time.Now()
	p.notifyUpdate()
}

// Snapshot returns a read-only copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.StartedAt).Seconds()
	var estimatedRemaining *float64
	if p.DoneCount > 0 {
		remaining := p.TotalFiles - p.DoneCount
		rate := elapsed / float64(p.DoneCount)
		est := rate * float64(remaining)
		estimatedRemaining = &est
	}

	return ProgressSnapshot{
		TotalFiles:                p.TotalFiles,
		DoneCount:                 p.DoneCount,
		ProcessedCount:            p.ProcessedCount,
		SkippedCount:              p.SkippedCount,
		HaltedCount:               p.HaltedCount,
		FailedCount:               p.FailedCount,
		CurrentFile:               p.CurrentFile,
		Status:                    p.Status,
		StartedAt:                 p.StartedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: estimatedRemaining,
	}
}

// notifyUpdate calls the update callback synchronously with a copy.
// Must be called with lock held.
func (p *Progress) notifyUpdate() {
	if p.onUpdate != nil {
		snapshot := &Progress{
			TotalFiles:     p.TotalFiles,
			DoneCount:      p.DoneCount,
			ProcessedCount: p.ProcessedCount,
			SkippedCount:   p.SkippedCount,
			HaltedCount:    p.HaltedCount,
			FailedCount:    p.FailedCount,
			CurrentFile:    p.CurrentFile,
			Status:         p.Status,
			StartedAt:      p.StartedAt,
			UpdatedAt:      p.UpdatedAt,
		}
		p.onUpdate(snapshot)
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalFiles                int
	DoneCount                 int
	ProcessedCount            int
	SkippedCount              int
	HaltedCount               int
	FailedCount               int
	CurrentFile               string
	Status                    string
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

// PercentComplete returns the percentage of files handled.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.DoneCount) / float64(s.TotalFiles) * 100
}

// IsComplete returns true if all files have been handled.
func (s ProgressSnapshot) IsComplete() bool {
	return s.DoneCount >= s.TotalFiles
}

// IsSuccess returns true if the run completed with no failures.
func (s ProgressSnapshot) IsSuccess() bool {
	return s.Status == "completed" && s.FailedCount == 0
}
