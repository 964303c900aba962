// Package install runs front-end package installs one at a time, in the
// order they were requested.
package install

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Submit after Close, and by tickets whose job
// was still pending when the queue closed
var ErrQueueClosed = errors.New("install queue closed")

// Installer installs a single package
type Installer interface {
	Install(ctx context.Context, pkg string) error
}

// InstallerFunc adapts a function to the Installer interface
type InstallerFunc func(ctx context.Context, pkg string) error

// Install calls f
func (f InstallerFunc) Install(ctx context.Context, pkg string) error {
	return f(ctx, pkg)
}

// Recorder persists job state transitions
type Recorder interface {
	Record(ctx context.Context, job *Job) error
}

// Ticket tracks a submitted job until it finishes
type Ticket struct {
	Job  *Job
	done chan struct{}
	err  error
}

// Done is closed when the job finishes
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the job finishes or ctx is done, and returns the
// installer error
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Queue
type Option func(*Queue)

// WithRecorder persists every job transition to r
func WithRecorder(r Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithTimeout bounds each install; zero means no limit
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) { q.timeout = d }
}

// Queue executes install jobs on exactly one worker goroutine
type Queue struct {
	installer Installer
	recorder  Recorder
	logger    *zap.Logger
	timeout   time.Duration

	mu      sync.Mutex
	pending []*Ticket
	closed  bool
	notify  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue and starts its worker
func NewQueue(installer Installer, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		installer: installer,
		logger:    zap.NewNop(),
		notify:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues an install of pkg behind every earlier submission
func (q *Queue) Submit(ctx context.Context, pkg string) (*Ticket, error) {
	if pkg == "" {
		return nil, errors.New("package name is required")
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, ErrQueueClosed
	}

	ticket := &Ticket{Job: NewJob(pkg), done: make(chan struct{})}
	q.record(ctx, ticket.Job)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		ticket.Job.cancel()
		q.record(ctx, ticket.Job)
		return nil, ErrQueueClosed
	}
	q.pending = append(q.pending, ticket)
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Info("install queued",
		zap.String("job_id", ticket.Job.ID.String()),
		zap.String("package", pkg),
		zap.Int("depth", depth),
	)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return ticket, nil
}

// Len returns the number of jobs waiting to start
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting jobs, waits for the running install to finish and
// cancels every job still pending
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	remaining := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, t := range remaining {
		t.Job.cancel()
		q.record(context.Background(), t.Job)
		t.err = ErrQueueClosed
		close(t.done)
	}
	return nil
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		ticket, ok := q.next()
		if !ok {
			select {
			case <-q.notify:
				continue
			case <-q.ctx.Done():
				return
			}
		}

		q.process(ticket)

		if q.ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) next() (*Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return nil, false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true
}

func (q *Queue) process(t *Ticket) {
	job := t.Job
	logger := q.logger.With(zap.String("job_id", job.ID.String()), zap.String("package", job.Package))

	// a running install is allowed to finish after Close
	ctx := context.WithoutCancel(q.ctx)

	job.start()
	q.record(ctx, job)
	logger.Info("installing package")

	installCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		installCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := q.installer.Install(installCtx, job.Package)
	if err != nil {
		err = fmt.Errorf("failed to install %s: %w", job.Package, err)
	}

	job.finish(err)
	q.record(ctx, job)

	if err != nil {
		logger.Error("install failed", zap.Error(err))
	} else {
		logger.Info("package installed", zap.Duration("duration", job.Duration()))
	}

	t.err = err
	close(t.done)
}

func (q *Queue) record(ctx context.Context, job *Job) {
	if q.recorder == nil {
		return
	}
	if err := q.recorder.Record(ctx, job); err != nil {
		q.logger.Warn("failed to record install job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}
