// Package callbacks decodes inline button data produced by telebot.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Separator splits the unique key from the payload.
const Separator = "|"

// ParseCallbackData parses telebot's "\f<unique>|<payload>" encoding.
// Data without the leading form feed is treated as a bare key.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return Split(cb.Data)
}

// Split decodes raw callback data into key and payload.
func Split(raw string) (string, string) {
	raw = strings.TrimLeft(raw, "\f")
	key, payload, _ := strings.Cut(raw, Separator)
	return strings.TrimSpace(key), payload
}
