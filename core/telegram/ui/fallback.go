// Package ui holds user-facing fallback replies.
package ui

import tele "gopkg.in/telebot.v4"

// Texts builds the replies sent when an update matches no route.
type Texts struct {
	Unknown  string
	Callback string
	Limited  string
}

// UnknownText replies to free text outside of a conversation.
func (t Texts) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		if t.Unknown == "" {
			return nil
		}
		return c.Send(t.Unknown)
	}
}

// UnknownCallback answers a press on a button nobody handles.
func (t Texts) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: t.Callback})
	}
}

// RateLimited tells the user to slow down.
func (t Texts) RateLimited() tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Callback() != nil {
			return c.Respond(&tele.CallbackResponse{Text: t.Limited})
		}
		if t.Limited == "" {
			return nil
		}
		return c.Send(t.Limited)
	}
}
