package router

import (
	"context"
	"errors"
	"time"

	tg "github.com/etf-team/tariffbot/core/telegram"
	tghelpers "github.com/etf-team/tariffbot/core/telegram/helpers"
	"github.com/etf-team/tariffbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// ErrNotConsumed tells the router that the conversation did not take the
// update and the text fallbacks should run.
var ErrNotConsumed = errors.New("router: update not consumed")

// Conversation receives free text and uploaded documents.
type Conversation interface {
	InProgress(ctx context.Context, userID int64) bool
	HandleText(c tele.Context) error
	HandleDocument(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds handlers for text and document routing. Text goes to the
// conversation while one is active, then to commands typed without the menu,
// then to the fallbacks. Documents always go to the conversation.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()
		ctx := tghelpers.BuildContext(c)

		if conv != nil && c.Sender() != nil && conv.InProgress(ctx, c.Sender().ID) {
			tghelpers.WithHandler(c, "conversation")
			err := conv.HandleText(c)
			if !errors.Is(err, ErrNotConsumed) {
				logHandlerSummary(c, "conversation", start, "", "", err)
				return err
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Typeable() {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if conv == nil {
			logHandlerSummary(c, "document", start, "skip", "ignored", nil)
			return nil
		}
		return handleWithSummary(c, "document", start, "", "", func() error {
			return conv.HandleDocument(c)
		})
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}
