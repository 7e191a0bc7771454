package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"

	"github.com/m3rciful/chatstats/core/logger"
	"github.com/m3rciful/chatstats/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbox.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// PerSecond paces every outbound API call, queued or direct.
	PerSecond int
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Outbox executes outbound Telegram calls on a bounded worker pool.
// Failed jobs are logged and counted, never returned to the caller.
type Outbox struct {
	opts    Options
	limiter ratelimit.Limiter
	jobs    chan job
	stop    chan struct{}
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	errs    atomic.Uint64
	sent    atomic.Uint64
}

// NewOutbox starts an outbox with sane defaults if options are zeroed.
func NewOutbox(opts Options) *Outbox {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	limiter := ratelimit.NewUnlimited()
	if opts.PerSecond > 0 {
		limiter = ratelimit.New(opts.PerSecond)
	}

	o := &Outbox{
		opts:    opts,
		limiter: limiter,
		jobs:    make(chan job, opts.QueueSize),
		stop:    make(chan struct{}),
	}

	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}

	return o
}

// Enqueue schedules run for asynchronous execution.
// The run closure must be idempotent if retries are desired.
func (o *Outbox) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrQueueClosed
	}

	select {
	case o.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit enqueues run and falls back to a direct paced call when the queue
// cannot take it.
func (o *Outbox) Submit(ctx context.Context, action, endpoint string, run func() error) error {
	err := o.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return o.Do(ctx, action, endpoint, run)
	}
	return err
}

// Do runs a single paced call synchronously and returns its error.
func (o *Outbox) Do(ctx context.Context, action, endpoint string, run func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	j := job{ctx: ctx, action: action, endpoint: endpoint, run: run}
	start := time.Now()
	o.limiter.Take()
	err := run()
	if err != nil {
		o.errs.Add(1)
		j.logResult(ctx, err, 1, time.Since(start))
		return err
	}
	o.sent.Add(1)
	j.logResult(ctx, nil, 1, time.Since(start))
	return nil
}

// ErrorCount returns the number of failed jobs.
func (o *Outbox) ErrorCount() uint64 {
	return o.errs.Load()
}

// SentCount returns the number of delivered jobs.
func (o *Outbox) SentCount() uint64 {
	return o.sent.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.stop)
	close(o.jobs)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.handleJob(j)
	}
}

func (o *Outbox) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// callers may be gone by now; the job keeps its own deadline
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "tg.sender", "send.start", j.attrs()...)

	policy := netutil.Policy{MaxRetries: o.opts.MaxRetries, Backoff: o.opts.RetryBackoff}
	attempts, err := netutil.Do(runCtx, policy, func(context.Context) error {
		o.limiter.Take()
		return j.run()
	}, func(attempt int, err error, delay time.Duration) {
		logger.Debug(ctx, "tg.sender", "send.retry.backoff", j.attrs(
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("err_kind", string(Classify(err))),
		)...)
	})
	if err != nil {
		o.errs.Add(1)
		j.logResult(ctx, err, attempts, time.Since(start))
		return
	}
	o.sent.Add(1)
	j.logResult(ctx, nil, attempts, time.Since(start))
}
