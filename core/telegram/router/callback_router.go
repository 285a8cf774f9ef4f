package router

import (
	"log/slog"
	"time"

	tg "github.com/etf-team/tariffbot/core/telegram"
	"github.com/etf-team/tariffbot/core/telegram/callbacks"
	"github.com/etf-team/tariffbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// resolveCallback finds the handler for key. Unknown keys fall back to
// opts.NotFound, then to the registry fallback, then to a bare answer so the
// client stops its spinner.
func resolveCallback(reg *tg.Registry, opts CallbackOptions, key string) (tele.HandlerFunc, bool) {
	if h, ok := reg.GetCallback(key); ok && h != nil {
		return h, true
	}
	for _, h := range []tele.HandlerFunc{opts.NotFound, reg.CallbackNotFound()} {
		if h != nil {
			return h, false
		}
	}
	return func(c tele.Context) error { return c.Respond() }, false
}

// CallbackRoute dispatches inline button presses by their unique key.
// Handlers answer the callback themselves.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		start := time.Now()
		key, _ := callbacks.ParseCallbackData(cb)
		h, found := resolveCallback(reg, opts, key)

		attrs := []slog.Attr{slog.String("cb_key", key)}
		status, outcome := "", ""
		if !found {
			attrs = append(attrs, slog.String("reason", "not_found"))
			status, outcome = "skip", "ignored"
		}
		return handleWithSummary(c, "callback."+normalizeHandlerName(key), start, status, outcome,
			func() error { return h(c) }, attrs...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
