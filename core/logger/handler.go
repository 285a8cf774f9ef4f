package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one flat line per record. Known keys come first
// in keyOrder, the rest follow alphabetically.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	jsonOut := h.cfg.format == formatJSON

	fs := make(fieldSet, 16)
	ts := r.Time.UTC()
	fs["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fs["level"] = normalizeLevel(r.Level.String())
	if jsonOut {
		fs["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		fs.put(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		fs.put(h.prefix, a)
		return true
	})
	for _, a := range RequestAttrs(ctx) {
		if _, set := fs[a.Key]; !set {
			fs[a.Key] = a.Value.Any()
		}
	}
	fs.finish(r.Message, jsonOut)

	var buf bytes.Buffer
	keys := fs.keys(h.cfg.keyOrder)
	if jsonOut {
		if err := fs.encodeJSON(&buf, keys); err != nil {
			return err
		}
	} else {
		fs.encodeKV(&buf, keys)
	}
	buf.WriteByte('\n')
	return h.cfg.writer.Write(buf.Bytes())
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fieldSet is one record flattened to dotted keys.
type fieldSet map[string]any

func (fs fieldSet) put(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			fs.put(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := plainValue(key, v); ok {
		fs[k] = val
	}
}

// finish applies the line conventions: compact rid, event and component
// fallbacks, known enum values only, no empty strings.
func (fs fieldSet) finish(msg string, jsonOut bool) {
	if rid, _ := fs["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			fs["rid"] = short
			if jsonOut {
				fs["rid_full"] = rid
			}
		}
	}
	if ev, _ := fs["event"].(string); ev == "" {
		fs["event"] = cmpOr(msg, "unknown")
	}
	if comp, _ := fs["component"].(string); comp == "" {
		fs["component"] = "app"
	}
	if s, ok := fs["status"].(string); ok {
		if v, _ := normalizeEnum(s, knownStatus); v != "" {
			fs["status"] = v
		}
	}
	if o, ok := fs["outcome"].(string); ok {
		if v, known := normalizeEnum(o, knownOutcome); known {
			fs["outcome"] = v
		} else {
			delete(fs, "outcome")
		}
	}
	for k, v := range fs {
		if s, ok := v.(string); ok && s == "" {
			delete(fs, k)
		}
	}
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (fs fieldSet) keys(order []string) []string {
	out := make([]string, 0, len(fs))
	for _, k := range order {
		if _, ok := fs[k]; ok && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	known := len(out)
	for k := range fs {
		if !slices.Contains(out[:known], k) {
			out = append(out, k)
		}
	}
	slices.Sort(out[known:])
	return out
}

func (fs fieldSet) encodeJSON(buf *bytes.Buffer, keys []string) error {
	buf.WriteByte('{')
	for i, k := range keys {
		v, err := json.Marshal(fs[k])
		if err != nil {
			return fmt.Errorf("logger: encode %q: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return nil
}

func (fs fieldSet) encodeKV(buf *bytes.Buffer, keys []string) {
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		s := fmt.Sprint(fs[k])
		if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
			s = strconv.Quote(s)
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(s)
	}
}

// durationKey maps duration attributes onto *_ms keys.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

// plainValue converts v into a JSON friendly value. Durations become
// milliseconds under a *_ms key.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}
