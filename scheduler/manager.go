// Package scheduler runs queued jobs in the background with retry and
// backoff. A Manager reports Running so probes can tell whether the host is
// actually working its queue.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"probeserver/internal/metrics"
)

var backoffBase = time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records queue depth and job outcomes into mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithWorkers bounds how many due jobs run concurrently.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithPollInterval sets how often the queue is scanned without a Wake.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithMaxAttempts sets how many executions a job gets before it is dropped.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithEnqueueHook calls fn after every Enqueue, outside the queue lock.
func WithEnqueueHook(fn func(Job)) Option {
	return func(m *Manager) { m.onEnqueue = fn }
}

// Manager manages a queue of jobs with retry logic.
type Manager struct {
	queue []Job
	mu    sync.Mutex

	running atomic.Bool
	life    sync.Mutex // serialises Start and Stop
	quit    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	wake    chan struct{}

	workers      int
	pollInterval time.Duration
	maxAttempts  int
	onEnqueue    func(Job)

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewManager creates a new job scheduler. It does nothing until Start.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		queue:        make([]Job, 0),
		wake:         make(chan struct{}, 1),
		workers:      1,
		pollInterval: 5 * time.Second,
		maxAttempts:  5,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue adds a job to the queue and returns its ID.
func (m *Manager) Enqueue(job Job) string {
	if job.ID == "" {
		job.ID = newJobID()
	}
	m.mu.Lock()
	if job.Attempts == 0 && job.NextRetry.IsZero() {
		job.NextRetry = time.Now()
	}
	m.queue = append(m.queue, job)
	depth := len(m.queue)
	m.mu.Unlock()

	m.metrics.SetQueueDepth(depth)
	m.logger.Debug("job queued",
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Int("attempt", job.Attempts),
	)
	if m.onEnqueue != nil {
		m.onEnqueue(job)
	}
	return job.ID
}

// Start starts the queue processor in a background goroutine. Calling Start
// on a running Manager does nothing.
func (m *Manager) Start() {
	m.life.Lock()
	defer m.life.Unlock()
	if m.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	m.cancel = cancel
	m.running.Store(true)
	m.logger.Info("scheduler started", zap.Int("workers", m.workers), zap.Duration("poll_interval", m.pollInterval))

	go m.loop(ctx, m.quit, m.done)
}

// Stop shuts down the queue processor, cancels running jobs and waits for
// the loop to exit. Jobs interrupted by Stop stay queued.
func (m *Manager) Stop() {
	m.life.Lock()
	defer m.life.Unlock()
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.quit)
	m.cancel()
	<-m.done
	m.logger.Info("scheduler stopped", zap.Int("pending", m.Depth()))
}

// Running reports whether the processor loop is active.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Depth returns the number of queued jobs.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Wake asks the processor to scan the queue now instead of at the next tick.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) loop(ctx context.Context, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		m.processQueue(ctx)
		select {
		case <-quit:
			return
		case <-ticker.C:
		case <-m.wake:
		}
	}
}

// processQueue runs the jobs that are due, at most m.workers at a time.
func (m *Manager) processQueue(ctx context.Context) {
	now := time.Now()

	due := make([]Job, 0)

	m.mu.Lock()
	remaining := m.queue[:0]
	for _, job := range m.queue {
		if now.Before(job.NextRetry) {
			remaining = append(remaining, job)
			continue
		}
		due = append(due, job)
	}
	m.queue = remaining
	m.mu.Unlock()

	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for _, job := range due {
		sem <- struct{}{}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			m.perform(ctx, job)
		}(job)
	}
	wg.Wait()
	m.metrics.SetQueueDepth(m.Depth())
}

func (m *Manager) perform(ctx context.Context, job Job) {
	err := run(ctx, job)
	if err == nil {
		if m.metrics != nil {
			m.metrics.JobsPerformed.Inc()
		}
		m.logger.Debug("job performed", zap.String("job_id", job.ID), zap.String("job", job.Name))
		return
	}

	if ctx.Err() != nil {
		// Interrupted by Stop; the attempt does not count.
		m.requeue(job)
		return
	}

	if m.metrics != nil {
		m.metrics.JobFailures.Inc()
	}
	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= m.maxAttempts {
		m.logger.Warn("job discarded",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempts", job.Attempts),
			zap.Error(err),
		)
		return
	}
	job.NextRetry = time.Now().Add(backoffDuration(job.Attempts))
	m.logger.Info("job retry scheduled",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("in", time.Until(job.NextRetry)),
		zap.Error(err),
	)
	m.requeue(job)
}

func (m *Manager) requeue(job Job) {
	m.mu.Lock()
	m.queue = append(m.queue, job)
	m.mu.Unlock()
}

func run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	if job.Perform == nil {
		return errors.New("job has no Perform function")
	}
	return job.Perform(ctx)
}

func backoffDuration(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	base := backoffBase * time.Duration(1<<uint(min(attempts-1, 6)))
	jitter := time.Duration(0)
	if quarter := int64(base / 4); quarter > 0 {
		jitter = time.Duration(mathrand.Int63n(quarter))
	}
	return base + jitter
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func newJobID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
