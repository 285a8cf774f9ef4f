package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
// nil makes helpers call the API inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// unavailable reports queue errors after which the call runs inline.
func unavailable(err error) bool {
	return errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed)
}

func sendAsync(ctx context.Context, action, endpoint string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, action, endpoint, run)
	if !unavailable(err) {
		return err
	}
	logger.Warn(ctx, "tg.sender", "queue.fallback",
		slog.String("action", action),
		slog.String("endpoint", endpoint),
		slog.String("err", err.Error()),
	)
	return run()
}

// SendText queues plain text to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := make([]interface{}, 0, 1)
	if len(opts) > 0 && opts[0] != nil {
		args = append(args, opts[0])
	}
	return sendAsync(BuildContext(c), "send.text", "sendMessage", func() error {
		return c.Send(text, args...)
	})
}

// Sender is the part of *tele.Bot used for direct sends.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// SendTo delivers what to a chat outside of an update and waits for the
// result. Without a dispatcher the call runs inline.
func SendTo(ctx context.Context, bot Sender, chatID int64, what any, opts ...any) error {
	run := func() error {
		_, err := bot.Send(tele.ChatID(chatID), what, opts...)
		return err
	}
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	if err := d.EnqueueWait(ctx, "send.direct", "sendMessage", run); !unavailable(err) {
		return err
	}
	return run()
}
