package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/etf-team/tariffbot/core/telegram"
	"github.com/etf-team/tariffbot/core/telegram/commands"
)

type fakeConversation struct {
	active    bool
	consume   bool
	texts     int
	documents int
}

func (f *fakeConversation) InProgress(context.Context, int64) bool { return f.active }

func (f *fakeConversation) HandleText(tele.Context) error {
	f.texts++
	if !f.consume {
		return ErrNotConsumed
	}
	return nil
}

func (f *fakeConversation) HandleDocument(tele.Context) error {
	f.documents++
	return nil
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func textCtx(b *tele.Bot, text string) tele.Context {
	return b.NewContext(tele.Update{ID: 5, Message: &tele.Message{
		Sender: &tele.User{ID: 3},
		Chat:   &tele.Chat{ID: 3},
		Text:   text,
	}})
}

func routeFor(routes []tg.Route, endpoint string) tele.HandlerFunc {
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	return nil
}

func TestTextRoutes_ConversationFirst(t *testing.T) {
	b := offlineBot(t)
	conv := &fakeConversation{active: true, consume: true}
	unknown := 0
	routes := TextRoutes(conv, tg.NewRegistry(), TextOptions{UnknownText: func(tele.Context) error { unknown++; return nil }})

	h := routeFor(routes, tele.OnText)
	require.NotNil(t, h)
	require.NoError(t, h(textCtx(b, "123")))
	assert.Equal(t, 1, conv.texts)
	assert.Zero(t, unknown)
}

func TestTextRoutes_FallsThroughWhenNotConsumed(t *testing.T) {
	b := offlineBot(t)
	conv := &fakeConversation{active: true}
	reg := tg.NewRegistry()
	helped := 0
	reg.RegisterCommand("/help", commands.Command{
		Description: "help",
		Handler:     func(tele.Context) error { helped++; return nil },
	})
	unknown := 0
	routes := TextRoutes(conv, reg, TextOptions{UnknownText: func(tele.Context) error { unknown++; return nil }})
	h := routeFor(routes, tele.OnText)

	require.NoError(t, h(textCtx(b, "help")))
	assert.Equal(t, 1, helped)
	require.NoError(t, h(textCtx(b, "what")))
	assert.Equal(t, 1, unknown)
}

func TestTextRoutes_IdleSkipsConversation(t *testing.T) {
	b := offlineBot(t)
	conv := &fakeConversation{}
	routes := TextRoutes(conv, nil, TextOptions{})
	require.NoError(t, routeFor(routes, tele.OnText)(textCtx(b, "hi")))
	assert.Zero(t, conv.texts)
}

func TestTextRoutes_DocumentsAlwaysReachConversation(t *testing.T) {
	b := offlineBot(t)
	conv := &fakeConversation{}
	routes := TextRoutes(conv, nil, TextOptions{})
	c := textCtx(b, "")
	c.Message().Document = &tele.Document{FileName: "a.xlsx"}
	require.NoError(t, routeFor(routes, tele.OnDocument)(c))
	assert.Equal(t, 1, conv.documents)
}

func TestCallbackRoute_DispatchesByKey(t *testing.T) {
	b := offlineBot(t)
	reg := tg.NewRegistry()
	var payload string
	require.NoError(t, reg.RegisterCallback("voltage", func(c tele.Context) error {
		payload = c.Callback().Data
		return nil
	}))
	missing := 0
	route := CallbackRoute(reg, CallbackOptions{NotFound: func(tele.Context) error { missing++; return nil }})

	cb := func(data string) tele.Context {
		return b.NewContext(tele.Update{ID: 9, Callback: &tele.Callback{
			Sender: &tele.User{ID: 3},
			Data:   data,
		}})
	}
	require.NoError(t, route.Handler(cb("\fvoltage|2")))
	assert.Equal(t, "\fvoltage|2", payload)
	require.NoError(t, route.Handler(cb("\fnope")))
	assert.Equal(t, 1, missing)
}

func TestCommandRoutes_AdminOnly(t *testing.T) {
	b := offlineBot(t)
	reg := tg.NewRegistry()
	calls := 0
	reg.RegisterCommand("/stats", commands.Command{
		Description: "stats",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { calls++; return nil },
	})
	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 3})
	require.Len(t, routes, 1)
	require.NoError(t, routes[0].Handler(textCtx(b, "/stats")))
	assert.Equal(t, 1, calls)

	routes = CommandRoutes(reg, CommandRouteOptions{AdminID: 4})
	require.NoError(t, routes[0].Handler(textCtx(b, "/stats")))
	assert.Equal(t, 1, calls)
}

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
	assert.Equal(t, "CANCELED", deriveErrorCode(fmt.Errorf("send: %w", context.Canceled)))
	assert.Equal(t, "TIMEOUT", deriveErrorCode(context.DeadlineExceeded))
	assert.Equal(t, "QUEUE_FULL", deriveErrorCode(fmt.Errorf("wrap: %w", codedErr("queue full"))))
}

type codedErr string

func (e codedErr) Error() string { return string(e) }
func (e codedErr) Code() string  { return string(e) }

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "start", normalizeHandlerName("/Start"))
	assert.Equal(t, "example_file", normalizeHandlerName(" example  file "))
	assert.Equal(t, "unknown", normalizeHandlerName("  "))
}
