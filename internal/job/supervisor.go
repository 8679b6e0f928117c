// Package job implements the single-flight background job supervisor.
//
// At most one ingestion run is active at any time. The supervisor keeps a
// non-owning view of the current run: a record with a done flag that the run
// goroutine clears on exit, guarded by the same mutex used for status reads.
// Admission therefore succeeds again the moment the previous run's goroutine
// returns, without any explicit stop or cleanup call.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by TryStart while a previous run is active.
// It is advisory; callers surface it to the user instead of retrying.
var ErrAlreadyRunning = errors.New("a background run is already active")

// Status is a coherent snapshot of the current run, safe to serialize.
type Status struct {
	Running  bool     `json:"running"`
	Title    string   `json:"title,omitempty"`
	Progress int      `json:"progress"`
	Max      int      `json:"max"`
	Log      []string `json:"log"`
}

// record holds the mutable state of one run. Single writer (the run
// goroutine via its Handle), any number of snapshot readers.
type record struct {
	title string

	mu       sync.Mutex
	progress int
	max      int
	log      []string
	done     bool
}

func (r *record) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return Status{Log: []string{}}
	}
	logCopy := make([]string, len(r.log))
	copy(logCopy, r.log)
	return Status{
		Running:  true,
		Title:    r.title,
		Progress: r.progress,
		Max:      r.max,
		Log:      logCopy,
	}
}

func (r *record) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *record) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}

// Handle gives the running pipeline write access to its record. Only the run
// goroutine may call its methods.
type Handle struct {
	rec    *record
	logger *zap.Logger
}

// Log appends one line to the run log and mirrors it to the service logger.
// The log is append-only; lines are never truncated or reordered.
func (h *Handle) Log(line string) {
	h.logger.Info(line, zap.String("job", h.rec.title))
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	h.rec.log = append(h.rec.log, line)
}

// Logf formats and appends one line to the run log.
func (h *Handle) Logf(format string, args ...any) {
	h.Log(fmt.Sprintf(format, args...))
}

// SetProgress updates the progress/max pair in one critical section.
// Progress is monotonically non-decreasing within a run.
func (h *Handle) SetProgress(progress, max int) {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if progress > h.rec.progress {
		h.rec.progress = progress
	}
	if max > 0 {
		h.rec.max = max
	}
}

// Advance increments progress by one.
func (h *Handle) Advance() {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	h.rec.progress++
}

// Progress returns the current progress/max pair.
func (h *Handle) Progress() (progress, max int) {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	return h.rec.progress, h.rec.max
}

// WorkFunc is the body of one background run.
type WorkFunc func(ctx context.Context, h *Handle)

// Supervisor owns the single current-run slot. Construct one at startup and
// hand it to whichever components need admission control.
type Supervisor struct {
	baseCtx context.Context
	logger  *zap.Logger

	mu  sync.Mutex
	cur *record
}

// NewSupervisor builds a Supervisor. Runs inherit baseCtx, so process
// shutdown cancels the pipeline's blocking operations.
func NewSupervisor(baseCtx context.Context, logger *zap.Logger) *Supervisor {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{baseCtx: baseCtx, logger: logger}
}

// TryStart atomically admits a new run. If the previous run's goroutine has
// not exited it fails with ErrAlreadyRunning and performs no side effect.
// Otherwise it claims the slot, spawns run on its own goroutine with a write
// handle, and returns immediately.
func (s *Supervisor) TryStart(title string, estimatedMax int, run WorkFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && !s.cur.finished() {
		return ErrAlreadyRunning
	}
	rec := &record{
		title: title,
		max:   estimatedMax,
		log:   []string{},
	}
	s.cur = rec
	handle := &Handle{rec: rec, logger: s.logger}

	go func() {
		defer rec.finish()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background run panicked", zap.String("job", title), zap.Any("panic", r))
				handle.Logf("run aborted: %v", r)
			}
		}()
		run(s.baseCtx, handle)
	}()

	return nil
}

// Status returns a non-blocking snapshot of the tracked run. Once the run
// goroutine has exited the supervisor reports not-running, even if a stale
// snapshot from before completion is still held by some caller.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	rec := s.cur
	s.mu.Unlock()
	if rec == nil {
		return Status{Log: []string{}}
	}
	return rec.snapshot()
}
