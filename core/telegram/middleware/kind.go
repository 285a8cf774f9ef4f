package middleware

import (
	coreconfig "github.com/etf-team/tariffbot/core/config"

	tele "gopkg.in/telebot.v4"
)

// UpdateKind names the update for rate limiting and metrics:
// callback, document, message or other.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil && upd.Message.Document != nil:
		return coreconfig.UpdateDocument
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	default:
		return "other"
	}
}
