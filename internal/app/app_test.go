package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/etf-team/tariffbot/core/config"
	tg "github.com/etf-team/tariffbot/core/telegram"
	"github.com/etf-team/tariffbot/core/telegram/router"
	"github.com/etf-team/tariffbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	cfg.Core.Telegram.Token = "test"
	cfg.Core.Telegram.AdminID = 99
	cfg.Core.RateLimit.IntervalMS = 500
	cfg.Tariff.BaseURL = "http://127.0.0.1:1"
	require.NoError(t, cfg.Conversation.normalize())
	require.NoError(t, cfg.Sessions.normalize())
	return cfg
}

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	a, err := New(testConfig(t), sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, err)
	return a, mock
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestNew_RejectsUnknownFlow(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t)
	cfg.Conversation.ManualFlow = conversation.FlowDocumentCases
	_, err = New(cfg, sqlx.NewDb(db, "sqlmock"))
	assert.Error(t, err)
}

func TestNew_RegistersHandlers(t *testing.T) {
	a, _ := newTestApp(t)

	for _, cmd := range []string{"/start", "/help", "/cancel", "/stats"} {
		_, ok := a.reg.Commands()[cmd]
		assert.True(t, ok, cmd)
	}
	assert.ElementsMatch(t, []string{
		cbCancel, cbExample, cbExampleStart, cbManual,
		conversation.ChoiceContract, conversation.ChoiceVoltage,
	}, a.reg.ListCallbacks())

	visible := a.reg.ListCommands(true)
	for _, c := range visible {
		assert.NotEqual(t, "/stats", c.Text)
	}
	assert.NotNil(t, a.memory)
	assert.Nil(t, a.redis)
}

func TestTelegramRunOptions(t *testing.T) {
	a, _ := newTestApp(t)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, &a.cfg.Core, opts.Config)
	assert.Same(t, a.reg, opts.Registry)
	// commands, callbacks, text and documents
	assert.Len(t, opts.Routes, 4+1+2)
	assert.NotNil(t, opts.OnStart)
	assert.NotNil(t, opts.OnStop)

	names := make([]string, 0, len(opts.Middlewares))
	for _, mw := range opts.Middlewares {
		names = append(names, mw.Name)
	}
	assert.Contains(t, names, "rate_limit")
	assert.Contains(t, names, "update_counter")
}

func TestBootstrap_RejectsForeignConfig(t *testing.T) {
	_, err := Bootstrap(foreignCarrier{})
	assert.Error(t, err)
}

type foreignCarrier struct{}

func (foreignCarrier) CoreConfig() *coreconfig.Config { return &coreconfig.Config{} }

func TestHealth(t *testing.T) {
	a, mock := newTestApp(t)

	mock.ExpectPing()
	assert.NoError(t, a.health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, a.health(context.Background()), "database")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStop(t *testing.T) {
	a, mock := newTestApp(t)
	a.cfg.Sessions.TTL = time.Minute

	require.NoError(t, a.start(context.Background(), tg.Runtime{Bot: &tele.Bot{}}))
	assert.NotNil(t, a.bot.Load())

	mock.ExpectClose()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.stop(ctx, tg.Runtime{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyAdmin_NoBotIsNoop(t *testing.T) {
	a, _ := newTestApp(t)
	a.notifyAdmin(context.Background(), 1, conversation.FlowManualVolume, errors.New("boom"))
}

func TestNotifier(t *testing.T) {
	chat := &fakeChat{}
	n := notifier{bot: chat}

	require.NoError(t, n.Notify(context.Background(), 42, "hello"))
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "hello", chat.sent[0].what)
}

func TestConversationAdapter_IdleTextNotConsumed(t *testing.T) {
	a, _ := newTestApp(t)
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	c := bot.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 7},
		Chat:   &tele.Chat{ID: 7},
		Text:   "hello",
	}})
	adapter := conversationAdapter{app: a}

	assert.False(t, adapter.InProgress(context.Background(), 7))
	assert.ErrorIs(t, adapter.HandleText(c), router.ErrNotConsumed)
}

func TestGreetingMarkup(t *testing.T) {
	a, _ := newTestApp(t)

	markup := a.greetingMarkup()
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, cbManual, markup.InlineKeyboard[0][0].Unique)

	a.cfg.Assets.ExampleFile = "testdata/test_file.xlsx"
	markup = a.greetingMarkup()
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, cbExample, markup.InlineKeyboard[1][0].Unique)
}

func TestExampleDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04"), 0o600))

	doc := exampleDocument(path)
	assert.Equal(t, exampleFileName, doc.Name)
	assert.Equal(t, int64(4), doc.Size)

	data, err := doc.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04"), data)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "", displayName(nil))
	assert.Equal(t, "@ivan", displayName(&tele.User{Username: "ivan", FirstName: "Иван"}))
	assert.Equal(t, "Иван Петров", displayName(&tele.User{FirstName: "Иван", LastName: "Петров"}))
	assert.Equal(t, "Иван", displayName(&tele.User{FirstName: "Иван"}))
}
