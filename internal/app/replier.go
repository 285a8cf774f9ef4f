package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/keyboard"
	"github.com/etf-team/tariffbot/core/telegram/middleware"
	"github.com/etf-team/tariffbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
)

// chatAPI is the part of the bot used by the replier.
type chatAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Notify(to tele.Recipient, action tele.ChatAction, threadID ...int) error
}

// replier delivers conversation replies into one chat. The progress message
// is removed once the outcome arrives.
type replier struct {
	api      chatAPI
	to       tele.Recipient
	callback func() error
	sadPhoto string

	mu       sync.Mutex
	progress *tele.Message
}

// countedAPI reports successful sends to the update's message counters.
type countedAPI struct {
	chatAPI
	c tele.Context
}

func (a countedAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	msg, err := a.chatAPI.Send(to, what, opts...)
	if err == nil {
		middleware.RecordSent(a.c, middleware.HasKeyboard(opts))
	}
	return msg, err
}

func newReplier(c tele.Context, sadPhoto string) *replier {
	r := &replier{api: countedAPI{chatAPI: c.Bot(), c: c}, to: c.Recipient(), sadPhoto: sadPhoto}
	if c.Callback() != nil {
		r.callback = func() error { return c.Respond() }
	}
	return r
}

func (r *replier) Ack(context.Context) error {
	if r.callback == nil {
		return nil
	}
	return r.callback()
}

func (r *replier) Reply(ctx context.Context, rep conversation.Reply) error {
	switch rep.Kind {
	case conversation.ReplyProgress:
		if err := r.api.Notify(r.to, tele.Typing); err != nil {
			logger.Debug(ctx, "tg", "notify.fail", slog.String("err", err.Error()))
		}
		msg, err := r.api.Send(r.to, rep.Text)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.progress = msg
		r.mu.Unlock()
		return nil
	case conversation.ReplyResult:
		r.dropProgress(ctx)
		return r.sendLong(rep.Text)
	case conversation.ReplyError:
		r.dropProgress(ctx)
		if r.sadPhoto != "" {
			photo := &tele.Photo{File: tele.File{FileID: r.sadPhoto}, Caption: truncateRunes(rep.Text, maxCaptionRunes)}
			_, err := r.api.Send(r.to, photo)
			if err == nil {
				return nil
			}
			logger.Warn(ctx, "tg", "photo.fail", slog.String("err", err.Error()))
		}
		return r.sendLong(rep.Text)
	default:
		var opts []interface{}
		if markup := replyMarkup(rep); markup != nil {
			opts = append(opts, markup)
		}
		_, err := r.api.Send(r.to, rep.Text, opts...)
		return err
	}
}

func (r *replier) dropProgress(ctx context.Context) {
	r.mu.Lock()
	msg := r.progress
	r.progress = nil
	r.mu.Unlock()
	if msg == nil {
		return
	}
	if err := r.api.Delete(msg); err != nil {
		logger.Debug(ctx, "tg", "progress.delete_fail", slog.String("err", err.Error()))
	}
}

func (r *replier) sendLong(text string) error {
	for _, part := range splitRunes(text, maxMessageRunes) {
		if _, err := r.api.Send(r.to, part); err != nil {
			return err
		}
	}
	return nil
}

// replyMarkup renders options as buttons, four per row, with a cancel row
// for cancelable prompts.
func replyMarkup(rep conversation.Reply) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, len(rep.Options))
	for _, o := range rep.Options {
		btns = append(btns, keyboard.InlineBtn{Text: o.Label, Unique: rep.ChoiceKey, Data: o.Token})
	}
	var extra [][]keyboard.InlineBtn
	if rep.Cancelable {
		extra = append(extra, []keyboard.InlineBtn{keyboard.CancelButton(cbCancel)})
	}
	if len(btns) == 0 && len(extra) == 0 {
		return nil
	}
	return keyboard.InlineButtonsNPerRow(btns, 4, extra...)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// splitRunes cuts s into parts of at most limit runes, preferring line breaks.
func splitRunes(s string, limit int) []string {
	var parts []string
	r := []rune(s)
	for len(r) > limit {
		cut := limit
		if i := strings.LastIndex(string(r[:limit]), "\n"); i > 0 {
			cut = utf8.RuneCountInString(string(r[:limit])[:i])
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
		if len(r) > 0 && r[0] == '\n' {
			r = r[1:]
		}
	}
	if len(r) > 0 || len(parts) == 0 {
		parts = append(parts, string(r))
	}
	return parts
}
