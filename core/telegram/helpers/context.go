package helpers

import (
	"context"

	"github.com/etf-team/tariffbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxSlot is the tele.Context store key holding the per-update context.
const ctxSlot = "request_ctx"

// BuildContext returns the logging context of the update carried by c.
// The first call derives it from the update and caches it in c, so every
// handler of one update shares the same rid.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return logger.Background()
	}
	if ctx, ok := c.Get(ctxSlot).(context.Context); ok && ctx != nil {
		return ctx
	}

	var userID, chatID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	updateID := c.Update().ID

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}
	ctx := logger.WithUpdateMeta(logger.WithRID(context.Background(), rid), updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	c.Set(ctxSlot, ctx)
	return ctx
}

// WithHandler tags the cached context with the handler serving the update.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if c == nil || handler == "" || logger.HandlerFrom(ctx) == handler {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	c.Set(ctxSlot, ctx)
	return ctx
}
