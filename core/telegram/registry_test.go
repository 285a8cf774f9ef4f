package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/etf-team/tariffbot/core/telegram/commands"
)

type recordingSetter struct {
	got []interface{}
}

func (r *recordingSetter) SetCommands(opts ...interface{}) error {
	r.got = append(r.got, opts...)
	return nil
}

func noop(tele.Context) error { return nil }

func TestRegistry_Commands(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Начать"}))
	require.NoError(t, reg.RegisterCommand("/stats", commands.Command{Handler: noop, Description: "Статистика", AdminOnly: true}))
	require.NoError(t, reg.RegisterCommand("/cancel", commands.Command{Handler: noop, Description: "Отменить", Aliases: []string{"отмена"}}))
	assert.Error(t, reg.RegisterCommand("help", commands.Command{Handler: noop, Description: "no slash"}))
	assert.Error(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "dup"}))

	assert.Len(t, reg.Commands(), 3)
	assert.Equal(t, []tele.Command{
		{Text: "/cancel", Description: "Отменить"},
		{Text: "/start", Description: "Начать"},
	}, reg.ListCommands(true))

	key, _, ok := reg.LookupCommand("отмена")
	require.True(t, ok)
	assert.Equal(t, "/cancel", key)
	key, _, ok = reg.LookupCommand("Отмена")
	require.True(t, ok)
	assert.Equal(t, "/cancel", key)
	key, _, ok = reg.LookupCommand("/start@tariff_bot now")
	require.True(t, ok)
	assert.Equal(t, "/start", key)
	_, _, ok = reg.LookupCommand("/nope")
	assert.False(t, ok)
	_, _, ok = reg.LookupCommand("   ")
	assert.False(t, ok)
}

func TestRegistry_Callbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("voltage", noop))
	assert.Error(t, reg.RegisterCallback("voltage", noop))
	assert.Error(t, reg.RegisterCallback("", noop))
	require.NoError(t, reg.RegisterCallback("contract", noop))

	_, ok := reg.GetCallback("voltage")
	assert.True(t, ok)
	assert.Equal(t, []string{"contract", "voltage"}, reg.ListCallbacks())
	assert.NotNil(t, reg.CallbackNotFound())
}

func TestSetupCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Помощь"})
	s := &recordingSetter{}
	SetupCommands(s, reg)
	require.Len(t, s.got, 1)
	assert.Equal(t, []tele.Command{{Text: "/help", Description: "Помощь"}}, s.got[0])
}

func TestBuildPoller(t *testing.T) {
	lp, ok := BuildPoller(PollerOptions{}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)

	wh, ok := BuildPoller(PollerOptions{
		RunMode: "webhook",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.org/hook"},
	}).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example.org/hook", wh.Endpoint.PublicURL)
}
