package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/callbacks"
	tghelpers "github.com/etf-team/tariffbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers update ids for a short window. The logger runs both
// globally and inside routers, and each update is logged once.
type seenUpdates struct {
	mu     sync.Mutex
	window time.Duration
	ids    map[int]time.Time
}

var receipts = &seenUpdates{window: 10 * time.Second, ids: make(map[int]time.Time)}

// first reports whether id was not seen within the window and records it.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.ids {
		if now.Sub(at) > s.window {
			delete(s.ids, k)
		}
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware assigns the update rid, primes the request context and
// logs one sampled debug receipt per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if rid, _ := c.Get("rid").(string); rid == "" {
			var userID, chatID int64
			if u := c.Sender(); u != nil {
				userID = u.ID
			}
			if ch := c.Chat(); ch != nil {
				chatID = ch.ID
			}
			c.Set("rid", logger.BuildRID(c.Update().ID, chatID, userID))
			c.Set("update_start", time.Now())
		}
		ctx := tghelpers.BuildContext(c)

		upd := c.Update()
		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

// receiptAttrs describes the update without dumping message bodies.
func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Int("update_id", upd.ID),
		slog.String("kind", UpdateKind(c)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 64)))
		}
	case upd.Message != nil && upd.Message.Document != nil:
		doc := upd.Message.Document
		attrs = append(attrs,
			slog.String("file_name", logger.SanitizeLimit(doc.FileName, 128)),
			slog.Int64("file_size", int64(doc.FileSize)),
		)
	case upd.Message != nil:
		attrs = append(attrs, slog.Int("text_len", len([]rune(upd.Message.Text))))
	}
	return attrs
}
