// Package reminder periodically asks registered users to refresh their meter data.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
)

// DefaultText is sent when no text is configured.
const DefaultText = "Доброго времени суток! \n" +
	"Напоминаем, что необходимо обновить данные с счетчиков для получения актуальных тарифов. " +
	"Обновите пожалуйста информацию по счетчикам"

// Config controls the broadcast schedule.
type Config struct {
	Enabled  bool          `yaml:"enabled" envconfig:"REMINDER_ENABLED"`
	Interval time.Duration `yaml:"interval" envconfig:"REMINDER_INTERVAL"`
	// DayOfMonth restricts broadcasts to one send on that calendar day; 0
	// disables the filter. Months shorter than DayOfMonth use their last day.
	DayOfMonth int    `yaml:"day_of_month" envconfig:"REMINDER_DAY_OF_MONTH"`
	Text       string `yaml:"text"`
}

// Normalize applies defaults and validates ranges.
func (c *Config) Normalize() error {
	if c.Interval == 0 {
		c.Interval = 48 * time.Hour
	}
	if c.Interval < time.Minute {
		return errors.New("reminder.interval must be at least 1m")
	}
	if c.DayOfMonth < 0 || c.DayOfMonth > 31 {
		return errors.New("reminder.day_of_month must be within 0..31")
	}
	if c.Text == "" {
		c.Text = DefaultText
	}
	return nil
}

// Recipients lists users to remind.
type Recipients interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// Notifier delivers one reminder.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Result summarizes one broadcast.
type Result struct {
	Recipients int
	Sent       int
	Failed     int
	Skipped    bool
}

// gatedPeriod bounds the tick period when DayOfMonth is set so the day is
// never stepped over.
const gatedPeriod = time.Hour

// Broadcaster sends reminders on a fixed interval. A failed delivery never
// stops the rest of the broadcast.
type Broadcaster struct {
	cfg        Config
	recipients Recipients
	notifier   Notifier
	now        func() time.Time

	mu       sync.Mutex
	lastSent string
	// OnDelivery, when set, observes each delivery attempt.
	OnDelivery func(ok bool)
}

// New constructs a Broadcaster.
func New(cfg Config, recipients Recipients, notifier Notifier) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 48 * time.Hour
	}
	if cfg.Text == "" {
		cfg.Text = DefaultText
	}
	return &Broadcaster{cfg: cfg, recipients: recipients, notifier: notifier, now: time.Now}
}

// Run broadcasts once right away and then every interval until ctx is done.
// With DayOfMonth set the ticker runs at least hourly.
func (b *Broadcaster) Run(ctx context.Context) {
	if !b.cfg.Enabled {
		logger.Info(ctx, "reminder", "disabled")
		return
	}
	logger.Info(ctx, "reminder", "start",
		slog.Duration("interval", b.period()),
		slog.Int("day_of_month", b.cfg.DayOfMonth),
	)
	ticker := time.NewTicker(b.period())
	defer ticker.Stop()
	for {
		if _, err := b.Tick(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "reminder", "tick.fail", slog.String("err", err.Error()))
		}
		select {
		case <-ctx.Done():
			logger.Info(ctx, "reminder", "stop")
			return
		case <-ticker.C:
		}
	}
}

// period is the ticker period used by Run.
func (b *Broadcaster) period() time.Duration {
	if b.cfg.DayOfMonth > 0 && b.cfg.Interval > gatedPeriod {
		return gatedPeriod
	}
	return b.cfg.Interval
}

// dueDay reports whether t falls on the configured day and returns the
// calendar date used to remember a completed broadcast.
func (b *Broadcaster) dueDay(t time.Time) (string, bool) {
	day := b.cfg.DayOfMonth
	if last := daysIn(t); day > last {
		day = last
	}
	return t.Format(time.DateOnly), t.Day() == day
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// Tick performs one broadcast pass. With DayOfMonth set, only the first
// successful pass on that day sends anything.
func (b *Broadcaster) Tick(ctx context.Context) (Result, error) {
	var date string
	if b.cfg.DayOfMonth > 0 {
		d, due := b.dueDay(b.now())
		b.mu.Lock()
		done := b.lastSent == d
		b.mu.Unlock()
		if !due || done {
			return Result{Skipped: true}, nil
		}
		date = d
	}
	start := time.Now()
	ids, err := b.recipients.ListUserIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Recipients: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		err := b.notifier.Notify(logger.WithUser(ctx, id), id, b.cfg.Text)
		if b.OnDelivery != nil {
			b.OnDelivery(err == nil)
		}
		if err != nil {
			res.Failed++
			logger.Debug(ctx, "reminder", "deliver.fail",
				slog.Int64("user_id", id),
				slog.String("err", err.Error()),
			)
			continue
		}
		res.Sent++
	}
	if date != "" {
		b.mu.Lock()
		b.lastSent = date
		b.mu.Unlock()
	}
	logger.Info(ctx, "reminder", "broadcast",
		slog.Int("recipients", res.Recipients),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}
