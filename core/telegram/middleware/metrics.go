package middleware

import (
	tele "gopkg.in/telebot.v4"
)

// Context store keys for per-update reply counters.
const (
	keyMessages = "messages"
	keyKeyboard = "kb"
)

// RecordSent counts one outgoing message for the update carried by c.
// Handlers that send through the bot API directly call it themselves.
func RecordSent(c tele.Context, withKeyboard bool) {
	if c == nil {
		return
	}
	n, _ := c.Get(keyMessages).(int)
	c.Set(keyMessages, n+1)
	if withKeyboard {
		c.Set(keyKeyboard, true)
	}
}

// HasKeyboard reports whether send options attach reply markup.
func HasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}

// countingContext records successful Send, Reply and Edit calls.
type countingContext struct{ tele.Context }

func (c countingContext) counted(err error, opts []interface{}) error {
	if err == nil {
		RecordSent(c.Context, HasKeyboard(opts))
	}
	return err
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.counted(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.counted(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.counted(c.Context.Edit(what, opts...), opts)
}

// MessageMetricsMiddleware resets the counters and hands handlers a
// context that keeps them.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(keyMessages, 0)
		c.Set(keyKeyboard, false)
		return next(countingContext{Context: c})
	}
}

// UpdateCounter returns a middleware reporting each update kind to count.
func UpdateCounter(count func(kind string)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if count == nil {
			return next
		}
		return func(c tele.Context) error {
			count(UpdateKind(c))
			return next(c)
		}
	}
}

// GetCounters returns how many messages the update produced and whether
// any carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(keyMessages).(int)
	kb, _ := c.Get(keyKeyboard).(bool)
	return msgs, kb
}
