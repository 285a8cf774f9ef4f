package telegram

import (
	"time"

	coreconfig "github.com/etf-team/tariffbot/core/config"
	"github.com/etf-team/tariffbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions tunes DefaultMiddlewares.
type MiddlewareOptions struct {
	// OnLimited answers a throttled update.
	OnLimited tele.HandlerFunc
	// CountUpdate receives the kind of every update.
	CountUpdate func(kind string)
}

// DefaultMiddlewares builds the shared chain: panic recovery, update
// counting, per-user throttling, request logging and reply counters.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if opts.CountUpdate != nil {
		chain = append(chain, Middleware{Name: "update_counter", Use: middleware.UpdateCounter(opts.CountUpdate)})
	}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		chain = append(chain, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:   cfg.RateLimit.ExcludeUpdates,
				OnLimited: opts.OnLimited,
			}),
		})
	}
	return append(chain,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}
