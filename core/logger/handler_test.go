package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, format logFormat) (*structuredHandler, *asyncWriter, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: format,
	})
	return h, aw, buf
}

func drain(t *testing.T, aw *asyncWriter, buf *bytes.Buffer) string {
	t.Helper()
	require.NoError(t, aw.Flush())
	require.NoError(t, aw.Close())
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandler_KVOrder(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log := slog.New(h).With("component", "conversation")
	LogEvent(ctx, log, slog.LevelInfo, "flow.step",
		slog.String("status", "ok"),
		slog.String("flow", "manual_volume"),
	)

	tokens := strings.Split(drain(t, aw, buf), " ")
	expected := []string{"ts=", "level=INFO", "component=conversation", "event=flow.step", "status=ok", "rid=rid-123"}
	require.GreaterOrEqual(t, len(tokens), len(expected))
	for i, prefix := range expected {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandler_JSONFields(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatJSON)
	ctx := WithUpdateMeta(WithRID(Background(), "11:22:33"), 11, 33, 22)

	log := slog.New(h).With("component", "tariff")
	LogEvent(ctx, log, slog.LevelError, "submit.failed",
		slog.String("status", "FAIL"),
		slog.String("outcome", "nonsense"),
		slog.Int("http_code", 500),
		slog.Duration("took", 1500*time.Microsecond),
		slog.Any("err", errors.New("boom")),
	)

	line := drain(t, aw, buf)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, "ERROR", got["level"])
	assert.Equal(t, "tariff", got["component"])
	assert.Equal(t, "submit.failed", got["event"])
	assert.Equal(t, "fail", got["status"])
	assert.NotContains(t, got, "outcome")
	assert.EqualValues(t, 500, got["http_code"])
	assert.EqualValues(t, 2, got["took_ms"])
	assert.Equal(t, "boom", got["err"])
	assert.Equal(t, CompactRID("11:22:33"), got["rid"])
	assert.Equal(t, "11:22:33", got["rid_full"])
	assert.EqualValues(t, 33, got["user_id"])
	assert.Contains(t, got, "ts_unix_nano")
	assert.True(t, strings.HasPrefix(line, `{"ts":`))
}

func TestStructuredHandler_CompactRIDKV(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatKV)
	ctx := WithRID(Background(), "123:456:789")
	LogEvent(ctx, slog.New(h), slog.LevelInfo, "rid.test")

	line := drain(t, aw, buf)
	assert.Contains(t, line, "rid="+CompactRID("123:456:789"))
	assert.NotContains(t, line, "rid_full=")
	assert.Contains(t, line, "component=app")
}

func TestStructuredHandler_LevelFilter(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatKV)
	LogEvent(Background(), slog.New(h), slog.LevelDebug, "hidden")
	assert.Empty(t, drain(t, aw, buf))
}

func TestStructuredHandler_GroupsAndQuoting(t *testing.T) {
	h, aw, buf := newTestHandler(t, formatKV)
	log := slog.New(h).WithGroup("req")
	log.Info("grouped", slog.String("path", "/volumes-info"), slog.String("note", "two words"))

	line := drain(t, aw, buf)
	assert.Contains(t, line, "req.path=/volumes-info")
	assert.Contains(t, line, `req.note="two words"`)
	assert.Contains(t, line, "event=grouped")
}

func TestContextHelpers(t *testing.T) {
	ctx := WithHandler(WithUser(Background(), 77), "reminder")
	assert.Equal(t, int64(77), UserIDFrom(ctx))
	assert.Equal(t, "reminder", HandlerFrom(ctx))
	assert.Zero(t, ChatIDFrom(ctx))
	assert.Equal(t, "1:2:3", BuildRID(1, 2, 3))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
	assert.Equal(t, "ab\ncd", Sanitize("a\x00b\ncd\u200b"))
	assert.Equal(t, "ab", SanitizeLimit("abc", 2))
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var allowed int
	for range 9 {
		if s.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	n, d := parseRatioSpec("2/5")
	assert.Equal(t, []int{2, 5}, []int{n, d})
	n, d = parseRatioSpec("10")
	assert.Equal(t, []int{1, 10}, []int{n, d})
	n, d = parseRatioSpec("x/y")
	assert.Equal(t, []int{0, 0}, []int{n, d})
}
