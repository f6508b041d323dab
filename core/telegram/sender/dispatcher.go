package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/telegram/netutil"
)

const component = "tg.sender"

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")
)

// Options controls the outbound dispatcher.
type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	// RetryBackoff grows linearly with the attempt number. A flood-control
	// answer replaces it with the wait Telegram asked for.
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, waits included.
	MaxDuration time.Duration
	// OnFailure is called once per job that exhausted its attempts.
	OnFailure func(ctx context.Context, action string, err error)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher runs outbound Telegram calls on a worker pool with retries.
type Dispatcher struct {
	opts Options
	jobs chan job
	wg   sync.WaitGroup
	errs atomic.Uint64

	// mu guards closed and jobs against a send racing Close.
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.process(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run is called again on retryable
// errors, so it must tolerate repetition.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do enqueues run, calling it synchronously (once) when the queue is full or
// closed. A nil dispatcher always calls run directly.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, run func() error) error {
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		logger.Warn(ctx, component, "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// ErrorCount is the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) process(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts, err := d.attempt(ctx, j)
	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	}
	if err == nil {
		logger.Debug(j.ctx, component, "send", append(attrs, slog.String("status", "ok"))...)
		return
	}

	d.errs.Add(1)
	logger.Error(j.ctx, component, "send",
		append(attrs,
			slog.String("status", "fail"),
			slog.String("err", netutil.RedactToken(err.Error())),
			slog.String("err_code", netutil.Classify(err)),
		)...,
	)
	if d.opts.OnFailure != nil {
		d.opts.OnFailure(j.ctx, j.action, err)
	}
}

// attempt runs j until it succeeds, fails permanently, runs out of retries
// or ctx expires. It returns the number of calls made.
func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	total := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		err := j.run()
		if err == nil || n == total || !netutil.ShouldRetry(err) {
			return n, err
		}

		delay := d.backoff(err, n)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			return n, err
		}
		logger.Debug(j.ctx, component, "send.retry",
			slog.String("action", j.action),
			slog.Int("attempts", n),
			slog.Duration("backoff", delay),
			slog.String("err_code", netutil.Classify(err)),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	if wait, ok := netutil.RetryAfter(err); ok {
		return wait
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}
