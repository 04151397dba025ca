// Package worker owns the long-lived embedding worker process and hands out
// exclusive access to its stdin/stdout pipes.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Policy decides what Start does when a worker is already running.
type Policy string

const (
	// PolicyReplace terminates and reaps the running worker, then spawns the new one.
	PolicyReplace Policy = "replace"
	// PolicyReject refuses to start while a worker is alive.
	PolicyReject Policy = "reject"
)

const defaultShutdownGrace = 2 * time.Second

// Status is a point-in-time view of the worker slot.
type Status struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	Path      string    `json:"path,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Calls     uint64    `json:"calls"`
}

// Handle holds at most one worker process. Start, Close and every borrow of the
// pipes serialize on a single lock that is held for the full borrow.
type Handle struct {
	// sem is the borrow lock; a channel so waiting can observe ctx.
	sem chan struct{}

	// mu guards proc and last for Status. Writers also hold sem.
	mu   sync.Mutex
	proc *process
	last Command

	policy Policy
	grace  time.Duration
	logger *zap.Logger
	calls  atomic.Uint64
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *zap.Logger) HandleOption {
	return func(h *Handle) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithPolicy sets the re-initialization policy.
func WithPolicy(p Policy) HandleOption {
	return func(h *Handle) {
		if p != "" {
			h.policy = p
		}
	}
}

// WithShutdownGrace sets how long Close waits after EOF, and again after SIGTERM, before killing the worker.
func WithShutdownGrace(d time.Duration) HandleOption {
	return func(h *Handle) { h.grace = d }
}

// NewHandle returns an empty handle. Nothing is spawned until Start or Initialize.
func NewHandle(opts ...HandleOption) *Handle {
	h := &Handle{
		sem:    make(chan struct{}, 1),
		policy: PolicyReplace,
		grace:  defaultShutdownGrace,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Initialize starts the executable at path with no arguments.
func (h *Handle) Initialize(path string) error {
	return h.Start(context.Background(), Command{Path: path})
}

// Start spawns a worker for c and stores it in the slot, applying the handle's
// policy when a worker is already alive.
func (h *Handle) Start(ctx context.Context, c Command) error {
	return h.start(ctx, c, false)
}

// Restart replaces the running worker with a fresh one launched from the last
// command, regardless of policy.
func (h *Handle) Restart(ctx context.Context) error {
	h.mu.Lock()
	c := h.last
	h.mu.Unlock()
	if c.Path == "" {
		return ErrUninitialized
	}
	return h.start(ctx, c, true)
}

func (h *Handle) start(ctx context.Context, c Command, force bool) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.unlock()

	h.mu.Lock()
	old := h.proc
	h.mu.Unlock()

	if old != nil {
		if old.alive() && h.policy == PolicyReject && !force {
			return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, old.pid())
		}
		h.reap(old)
	}

	p, err := spawn(c)
	if err != nil {
		h.logger.Error("worker spawn failed", zap.String("path", c.Path), zap.Error(err))
		return err
	}
	h.mu.Lock()
	h.proc = p
	h.last = c
	h.mu.Unlock()
	h.logger.Info("worker started",
		zap.String("path", c.Path),
		zap.Strings("args", c.Args),
		zap.Int("pid", p.pid()),
	)
	return nil
}

// reap terminates p and empties the slot if p still occupies it. Caller holds sem.
func (h *Handle) reap(p *process) {
	err := p.terminate(h.grace)
	h.mu.Lock()
	if h.proc == p {
		h.proc = nil
	}
	h.mu.Unlock()
	h.logger.Info("worker stopped", zap.Int("pid", p.pid()), zap.NamedError("exit", err))
}

// Acquire takes exclusive ownership of the worker's pipes. It blocks until no
// other borrow is in flight or ctx is done, and fails with ErrUninitialized when
// the slot is empty. Every successful Acquire must be paired with Release or Discard.
func (h *Handle) Acquire(ctx context.Context) (*Pipes, error) {
	if err := h.lock(ctx); err != nil {
		return nil, err
	}
	// select picks at random when both cases are ready
	if err := ctx.Err(); err != nil {
		h.unlock()
		return nil, err
	}
	h.mu.Lock()
	p := h.proc
	h.mu.Unlock()
	if p == nil || p.pipes == nil {
		h.unlock()
		return nil, ErrUninitialized
	}
	pipes := p.pipes
	p.pipes = nil
	h.calls.Add(1)
	return pipes, nil
}

// Release puts the pipes back and lets the next caller in.
func (h *Handle) Release(pipes *Pipes) {
	if pipes != nil && pipes.owner != nil {
		pipes.owner.pipes = pipes
	}
	h.unlock()
}

// Discard kills the worker owning pipes, reaps it, empties the slot and lets the
// next caller in. Used when a call abandons the stream mid-flight.
func (h *Handle) Discard(pipes *Pipes) {
	if pipes != nil && pipes.owner != nil {
		pipes.Kill()
		h.mu.Lock()
		wasCurrent := h.proc == pipes.owner
		h.mu.Unlock()
		if wasCurrent {
			h.logger.Warn("discarding worker after abandoned call", zap.Int("pid", pipes.owner.pid()))
		}
		h.reap(pipes.owner)
	}
	h.unlock()
}

// Do runs fn with the pipes borrowed. A ctx that is already done fails before the
// pipes are touched and leaves the worker in place. If ctx ends while fn is still
// running, the worker is killed to unblock fn, discarded, and ctx's error is returned.
func (h *Handle) Do(ctx context.Context, fn func(*Pipes) error) error {
	pipes, err := h.Acquire(ctx)
	if err != nil {
		return err
	}
	if ctx.Done() == nil {
		err := fn(pipes)
		h.Release(pipes)
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn(pipes) }()
	select {
	case err := <-done:
		h.Release(pipes)
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			// fn finished before the cancellation was seen
			h.Release(pipes)
			return err
		default:
		}
		pipes.Kill()
		<-done
		h.Discard(pipes)
		return fmt.Errorf("worker discarded: %w", ctx.Err())
	}
}

// Close stops the worker, if any. The handle may be started again afterwards.
func (h *Handle) Close() error {
	if err := h.lock(context.Background()); err != nil {
		return err
	}
	defer h.unlock()
	h.mu.Lock()
	p := h.proc
	h.mu.Unlock()
	if p != nil {
		h.reap(p)
	}
	return nil
}

// Status reports the current worker without waiting for in-flight calls.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{Calls: h.calls.Load()}
	if h.proc != nil && h.proc.alive() {
		st.Running = true
		st.PID = h.proc.pid()
		st.Path = h.proc.path
		st.StartedAt = h.proc.startedAt
	}
	return st
}

func (h *Handle) lock(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) unlock() {
	<-h.sem
}
