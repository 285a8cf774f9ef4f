// Package sender runs outbound Telegram calls on a bounded worker pool.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned once Close has been called.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the queue has no free slot.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilCall = errors.New("telegram sender: nil run function")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o Options) normalized() Options {
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

// call is one queued API request.
type call struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
	// result, when set, receives the final error.
	result chan<- error
}

func (c call) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", c.action)}
	if c.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", c.endpoint))
	}
	return append(attrs, logger.RequestAttrs(c.ctx)...)
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
type Dispatcher struct {
	opts Options

	mu     sync.RWMutex
	queue  chan call
	closed bool

	workers  sync.WaitGroup
	failures atomic.Uint64
}

// NewDispatcher starts the worker pool. Zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.normalized()
	d := &Dispatcher{opts: opts, queue: make(chan call, opts.QueueSize)}
	for range opts.Workers {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for c := range d.queue {
				err := d.execute(c)
				if c.result != nil {
					c.result <- err
				}
			}
		}()
	}
	return d
}

// Enqueue schedules run without waiting for it. run may be called more
// than once when the failure is retryable.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	return d.submit(call{ctx: orBackground(ctx), action: action, endpoint: endpoint, run: run})
}

// EnqueueWait schedules run and blocks until it finished, retries included.
// Broadcasts use it to learn the delivery result.
func (d *Dispatcher) EnqueueWait(ctx context.Context, action, endpoint string, run func() error) error {
	ctx = orBackground(ctx)
	result := make(chan error, 1)
	if err := d.submit(call{ctx: ctx, action: action, endpoint: endpoint, run: run, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) submit(c call) error {
	if c.run == nil {
		return errNilCall
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of calls that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failures.Load()
}

// Close rejects new calls and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) execute(c call) error {
	deadline, cancel := context.WithTimeout(c.ctx, d.opts.MaxDuration)
	defer cancel()

	began := time.Now()
	logger.Debug(c.ctx, "tg.sender", "send.start", c.attrs()...)

	limit := d.opts.MaxRetries + 1
	var err error
	attempt := 0
	for attempt < limit {
		attempt++
		if err = c.run(); err == nil {
			attrs := c.attrs()
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			logger.Debug(c.ctx, "tg.sender", "send.success",
				append(attrs, slog.Int("elapsed_ms", elapsedMS(began)))...)
			return nil
		}
		wait, again := d.backoff(err, attempt)
		if !again || attempt == limit {
			break
		}
		logger.Debug(c.ctx, "tg.sender", "send.retry.backoff", append(c.attrs(),
			slog.Int("attempt", attempt),
			slog.Duration("delay", wait),
			slog.String("err_kind", classifyError(err)),
		)...)
		if ctxErr := pause(deadline, wait); ctxErr != nil {
			err = errors.Join(err, ctxErr)
			break
		}
	}

	d.failures.Add(1)
	logger.Error(c.ctx, "tg.sender", "send.fail", append(c.attrs(),
		slog.String("err", sanitizeErrorMessage(err)),
		slog.String("err_kind", classifyError(err)),
		slog.Int("elapsed_ms", elapsedMS(began)),
		slog.Int("attempts", attempt),
	)...)
	return err
}

// backoff reports how long to wait before retrying err. Flood control
// dictates its own pause; network and 5xx failures back off linearly.
func (d *Dispatcher) backoff(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) || statusOf(err) >= http.StatusInternalServerError {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func elapsedMS(since time.Time) int {
	return int(logger.RoundMS(time.Since(since)) / time.Millisecond)
}
