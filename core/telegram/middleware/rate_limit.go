package middleware

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
	tghelpers "github.com/etf-team/tariffbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update kinds (see UpdateKind) that are never limited.
	Exclude   []string
	OnLimited tele.HandlerFunc
	// Now is used by tests; nil means time.Now.
	Now func() time.Time
}

// throttle remembers the last accepted update per user.
type throttle struct {
	interval time.Duration

	mu     sync.Mutex
	last   map[int64]time.Time
	pruned time.Time
}

// allow records ts for user unless the previous accepted update is closer
// than the interval. Entries older than the interval are pruned now and then.
func (t *throttle) allow(user int64, ts time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[user]; ok && ts.Sub(prev) < t.interval {
		return false
	}
	t.last[user] = ts
	if ts.Sub(t.pruned) > 64*t.interval {
		for id, at := range t.last {
			if ts.Sub(at) >= t.interval {
				delete(t.last, id)
			}
		}
		t.pruned = ts
	}
	return true
}

// RateLimitMiddleware drops updates that arrive from the same user faster
// than opts.Interval. Excluded update kinds pass untouched.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	exclude := make([]string, 0, len(opts.Exclude))
	for _, k := range opts.Exclude {
		exclude = append(exclude, strings.ToLower(strings.TrimSpace(k)))
	}
	th := &throttle{interval: opts.Interval, last: make(map[int64]time.Time)}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if opts.Interval <= 0 {
			return next
		}
		return func(c tele.Context) error {
			user := c.Sender()
			kind := UpdateKind(c)
			if user == nil || slices.Contains(exclude, kind) || th.allow(user.ID, opts.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "rate_limit",
				slog.String("outcome", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				if err := opts.OnLimited(c); err != nil {
					logger.Debug(tghelpers.BuildContext(c), "tg", "rate_limit.reply_fail", slog.String("err", err.Error()))
				}
			}
			return nil
		}
	}
}
