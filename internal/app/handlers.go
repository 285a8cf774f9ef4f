package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/callbacks"
	"github.com/etf-team/tariffbot/core/telegram/commands"
	tghelpers "github.com/etf-team/tariffbot/core/telegram/helpers"
	"github.com/etf-team/tariffbot/core/telegram/keyboard"
	"github.com/etf-team/tariffbot/core/telegram/router"
	"github.com/etf-team/tariffbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

func (a *App) registerCommands() {
	cmds := map[string]commands.Command{
		"/start": {
			Handler:     a.onStart,
			Description: "Начать работу",
			Aliases:     []string{"start", "старт"},
		},
		"/help": {
			Handler:     a.onHelp,
			Description: "Справка",
			Aliases:     []string{"help", "помощь"},
		},
		"/cancel": {
			Handler:     a.onCancel,
			Description: "Отменить ввод",
			Aliases:     []string{"cancel", "отмена"},
		},
		"/stats": {
			Handler:     a.onStats,
			Description: "Статистика",
			AdminOnly:   true,
			Hidden:      true,
		},
	}
	for name, cmd := range cmds {
		if err := a.reg.RegisterCommand(name, cmd); err != nil {
			logger.Warn(logger.Background(), "app", "command.register_fail", slog.String("err", err.Error()))
		}
	}
}

func (a *App) registerCallbacks() {
	handlers := map[string]tele.HandlerFunc{
		cbManual:                    a.onManual,
		cbExample:                   a.onExampleOffer,
		cbExampleStart:              a.onExampleSend,
		cbCancel:                    a.onCancel,
		conversation.ChoiceVoltage:  a.onChoice,
		conversation.ChoiceContract: a.onChoice,
	}
	for key, h := range handlers {
		if err := a.reg.RegisterCallback(key, h); err != nil {
			logger.Warn(logger.Background(), "app", "callback.register_fail",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (a *App) onStart(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := a.machine.Reset(ctx, user.ID); err != nil {
		logger.Warn(ctx, "app", "session.reset_fail", slog.String("err", err.Error()))
	}

	created, err := a.users.Upsert(ctx, user.ID, displayName(user))
	if err != nil {
		logger.Error(ctx, "app", "user.upsert_fail", slog.String("err", err.Error()))
	} else if created {
		a.metrics.UserRegistered()
	}

	var what interface{} = textGreeting
	if id := a.cfg.Assets.HelloPhoto; id != "" {
		what = &tele.Photo{File: tele.File{FileID: id}, Caption: truncateRunes(textGreeting, maxCaptionRunes)}
	}
	msg, err := c.Bot().Send(c.Recipient(), what, a.greetingMarkup())
	if err != nil {
		return err
	}
	if created {
		if err := c.Bot().Pin(msg); err != nil {
			logger.Debug(ctx, "app", "pin.fail", slog.String("err", err.Error()))
		}
	}
	return nil
}

func (a *App) greetingMarkup() *tele.ReplyMarkup {
	rows := [][]keyboard.InlineBtn{{{Text: btnManual, Unique: cbManual}}}
	if a.cfg.Assets.ExampleFile != "" {
		rows = append(rows, []keyboard.InlineBtn{{Text: btnExample, Unique: cbExample}})
	}
	return keyboard.InlineButtonsRows(rows...)
}

func (a *App) onHelp(c tele.Context) error {
	return tghelpers.SendText(c, textHelp)
}

func (a *App) onStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	users, err := a.users.Count(ctx)
	if err != nil {
		return err
	}
	sessions, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf(textStats, users, sessions))
}

func (a *App) onCancel(c tele.Context) error {
	return a.dispatch(c, conversation.EventCancel, nil)
}

func (a *App) onManual(c tele.Context) error {
	return a.dispatch(c, conversation.EventStartManual, nil)
}

func (a *App) onChoice(c tele.Context) error {
	key, payload := callbacks.ParseCallbackData(c.Callback())
	return a.dispatch(c, conversation.EventChoice, func(ev *conversation.Event) {
		ev.Choice = conversation.Choice{Key: key, Value: payload}
	})
}

func (a *App) onExampleOffer(c tele.Context) error {
	_ = c.Respond()
	markup := keyboard.Single(keyboard.InlineBtn{Text: btnExampleStart, Unique: cbExampleStart})
	if id := a.cfg.Assets.HaPhoto; id != "" {
		photo := &tele.Photo{File: tele.File{FileID: id}, Caption: textExampleOffer}
		return c.Send(photo, markup)
	}
	return c.Send(textExampleOffer, markup)
}

// onExampleSend swaps the offer for the example spreadsheet and then submits
// it as if the user had uploaded it.
func (a *App) onExampleSend(c tele.Context) error {
	_ = c.Respond()
	ctx := tghelpers.BuildContext(c)
	path := a.cfg.Assets.ExampleFile
	doc := &tele.Document{
		File:     tele.FromDisk(path),
		FileName: exampleFileName,
		Caption:  textExampleSent,
	}
	if err := c.Edit(doc); err != nil {
		logger.Debug(ctx, "app", "example.edit_fail", slog.String("err", err.Error()))
		if err := c.Send(doc); err != nil {
			logger.Warn(ctx, "app", "example.send_fail", slog.String("err", err.Error()))
			return c.Send(fmt.Sprintf(textExampleFail, err))
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cfg.Conversation.ExampleDelay):
	}

	return a.dispatch(c, conversation.EventDocument, func(ev *conversation.Event) {
		ev.Document = exampleDocument(path)
	})
}

func exampleDocument(path string) *conversation.Document {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return &conversation.Document{
		Name: exampleFileName,
		Size: size,
		Fetch: func(context.Context) ([]byte, error) {
			return os.ReadFile(filepath.Clean(path))
		},
	}
}

// dispatch builds an event of kind for the sender and runs it through the machine.
func (a *App) dispatch(c tele.Context, kind conversation.EventKind, fill func(*conversation.Event)) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ev := conversation.Event{Kind: kind, UserID: user.ID}
	if fill != nil {
		fill(&ev)
	}
	return a.machine.Handle(tghelpers.BuildContext(c), ev, newReplier(c, a.cfg.Assets.SadPhoto))
}

// conversationAdapter feeds text and documents from the router to the machine.
type conversationAdapter struct {
	app *App
}

func (ca conversationAdapter) InProgress(ctx context.Context, userID int64) bool {
	return ca.app.machine.InProgress(ctx, userID)
}

func (ca conversationAdapter) HandleText(c tele.Context) error {
	err := ca.app.dispatch(c, conversation.EventText, func(ev *conversation.Event) {
		ev.Text = c.Text()
	})
	if errors.Is(err, conversation.ErrUnhandled) {
		return router.ErrNotConsumed
	}
	return err
}

func (ca conversationAdapter) HandleDocument(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Document == nil {
		return nil
	}
	doc := msg.Document
	limit := ca.app.cfg.Conversation.MaxDocumentBytes
	api := c.Bot()
	return ca.app.dispatch(c, conversation.EventDocument, func(ev *conversation.Event) {
		ev.Document = &conversation.Document{
			Name: doc.FileName,
			Size: int64(doc.FileSize),
			Fetch: func(context.Context) ([]byte, error) {
				rc, err := api.File(&doc.File)
				if err != nil {
					return nil, err
				}
				defer rc.Close()
				return io.ReadAll(io.LimitReader(rc, limit+1))
			},
		}
	})
}

// displayName picks the name stored for a user.
func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
