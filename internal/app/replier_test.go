package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etf-team/tariffbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

type sentMessage struct {
	what interface{}
	opts []interface{}
}

type fakeChat struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []tele.Editable
	notified int
	failOn   func(what interface{}) error
}

func (f *fakeChat) Send(_ tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(what); err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, sentMessage{what: what, opts: opts})
	return &tele.Message{ID: len(f.sent), Chat: &tele.Chat{ID: 1}}, nil
}

func (f *fakeChat) Delete(msg tele.Editable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msg)
	return nil
}

func (f *fakeChat) Notify(tele.Recipient, tele.ChatAction, ...int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified++
	return nil
}

func newTestReplier(chat *fakeChat, sadPhoto string) *replier {
	return &replier{api: chat, to: &tele.Chat{ID: 1}, sadPhoto: sadPhoto}
}

func TestReplier_PromptCarriesKeyboard(t *testing.T) {
	chat := &fakeChat{}
	r := newTestReplier(chat, "")

	err := r.Reply(context.Background(), conversation.Reply{
		Kind:      conversation.ReplyPrompt,
		Text:      "Выберите уровень напряжения:",
		ChoiceKey: conversation.ChoiceVoltage,
		Options: []conversation.Option{
			{Token: "1", Label: "ВН"}, {Token: "2", Label: "СН1"},
			{Token: "3", Label: "СН2"}, {Token: "4", Label: "НН"},
			{Token: "5", Label: "ГН"},
		},
		Cancelable: true,
	})
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	require.Len(t, chat.sent[0].opts, 1)

	markup, ok := chat.sent[0].opts[0].(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 3)
	assert.Len(t, markup.InlineKeyboard[0], 4)
	assert.Len(t, markup.InlineKeyboard[1], 1)
	assert.Equal(t, conversation.ChoiceVoltage, markup.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "1", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, cbCancel, markup.InlineKeyboard[2][0].Unique)
}

func TestReplier_PlainNoticeHasNoMarkup(t *testing.T) {
	chat := &fakeChat{}
	r := newTestReplier(chat, "")

	require.NoError(t, r.Reply(context.Background(), conversation.Reply{Kind: conversation.ReplyNotice, Text: "ok"}))
	require.Len(t, chat.sent, 1)
	assert.Empty(t, chat.sent[0].opts)
}

func TestReplier_ProgressRemovedOnResult(t *testing.T) {
	chat := &fakeChat{}
	r := newTestReplier(chat, "")
	ctx := context.Background()

	require.NoError(t, r.Reply(ctx, conversation.Reply{Kind: conversation.ReplyProgress, Text: "Обрабатываю файл..."}))
	require.NoError(t, r.Reply(ctx, conversation.Reply{Kind: conversation.ReplyResult, Text: "result"}))

	assert.Equal(t, 1, chat.notified)
	require.Len(t, chat.deleted, 1)
	require.Len(t, chat.sent, 2)
	assert.Equal(t, "result", chat.sent[1].what)
}

func TestReplier_ErrorUsesPhotoWhenConfigured(t *testing.T) {
	chat := &fakeChat{}
	r := newTestReplier(chat, "sad-id")

	require.NoError(t, r.Reply(context.Background(), conversation.Reply{Kind: conversation.ReplyError, Text: "Ошибка"}))
	require.Len(t, chat.sent, 1)
	photo, ok := chat.sent[0].what.(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "sad-id", photo.FileID)
	assert.Equal(t, "Ошибка", photo.Caption)
}

func TestReplier_ErrorFallsBackToText(t *testing.T) {
	chat := &fakeChat{failOn: func(what interface{}) error {
		if _, ok := what.(*tele.Photo); ok {
			return errors.New("file not found")
		}
		return nil
	}}
	r := newTestReplier(chat, "sad-id")

	require.NoError(t, r.Reply(context.Background(), conversation.Reply{Kind: conversation.ReplyError, Text: "Ошибка"}))
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "Ошибка", chat.sent[0].what)
}

func TestReplier_LongResultIsSplit(t *testing.T) {
	chat := &fakeChat{}
	r := newTestReplier(chat, "")
	line := strings.Repeat("я", 100) + "\n"
	text := strings.Repeat(line, 60)

	require.NoError(t, r.Reply(context.Background(), conversation.Reply{Kind: conversation.ReplyResult, Text: text}))
	require.Len(t, chat.sent, 2)
	for _, m := range chat.sent {
		assert.LessOrEqual(t, len([]rune(m.what.(string))), maxMessageRunes)
	}
}

func TestReplier_AckWithoutCallback(t *testing.T) {
	r := newTestReplier(&fakeChat{}, "")
	assert.NoError(t, r.Ack(context.Background()))

	called := false
	r.callback = func() error { called = true; return nil }
	require.NoError(t, r.Ack(context.Background()))
	assert.True(t, called)
}

func TestSplitRunes(t *testing.T) {
	assert.Equal(t, []string{""}, splitRunes("", 10))
	assert.Equal(t, []string{"abc"}, splitRunes("abc", 10))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, splitRunes("abcdefghij", 4))
	assert.Equal(t, []string{"ab", "cdef"}, splitRunes("ab\ncdef", 5))
	assert.Equal(t, []string{"пр", "ив", "ет"}, splitRunes("привет", 2))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "абв…", truncateRunes("абвгдеж", 4))
}
