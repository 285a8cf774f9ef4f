package helpers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/etf-team/tariffbot/core/telegram/sender"
)

type fakeBot struct {
	to   []string
	what []any
	err  error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.to = append(f.to, to.Recipient())
	f.what = append(f.what, what)
	return &tele.Message{}, f.err
}

func TestSendTo_Inline(t *testing.T) {
	SetDispatcher(nil)
	bot := &fakeBot{}
	require.NoError(t, SendTo(context.Background(), bot, 42, "hi"))
	assert.Equal(t, []string{"42"}, bot.to)
	assert.Equal(t, []any{"hi"}, bot.what)
}

func TestSendTo_ThroughDispatcher(t *testing.T) {
	d := sender.NewDispatcher(sender.Options{Workers: 1, RetryBackoff: time.Millisecond})
	SetDispatcher(d)
	t.Cleanup(func() {
		SetDispatcher(nil)
		d.Close()
	})

	blocked := errors.New("Forbidden: bot was blocked by the user (403)")
	bot := &fakeBot{err: blocked}
	err := SendTo(context.Background(), bot, 7, "reminder")
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, []string{"7"}, bot.to)
}
