package logger

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	coreconfig "github.com/etf-team/tariffbot/core/config"
)

type ratio struct{ keep, every uint64 }

// ratioSampler passes the first keep events of every window of size every.
// A nil ratio passes everything.
type ratioSampler struct {
	r    atomic.Pointer[ratio]
	seen atomic.Uint64
}

func newRatioSampler(keep, every int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(keep, every)
	return s
}

// Set replaces the ratio and restarts the window.
func (s *ratioSampler) Set(keep, every int) {
	s.seen.Store(0)
	if keep <= 0 || every <= 0 {
		s.r.Store(nil)
		return
	}
	s.r.Store(&ratio{keep: uint64(min(keep, every)), every: uint64(every)})
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.r.Load()
	if r == nil {
		return true
	}
	pos := (s.seen.Add(1) - 1) % r.every
	return pos < r.keep
}

// parseRatioSpec reads "keep/every", or a bare "every" meaning 1/every.
// Anything unparsable yields 0/0.
func parseRatioSpec(spec string) (int, int) {
	head, tail, hasSlash := strings.Cut(strings.TrimSpace(spec), "/")
	if !hasSlash {
		every, err := strconv.Atoi(head)
		if err != nil || every <= 0 {
			return 0, 0
		}
		return 1, every
	}
	keep, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, 0
	}
	every, err := strconv.Atoi(strings.TrimSpace(tail))
	if err != nil {
		return 0, 0
	}
	return keep, every
}

var (
	debugSampler = newRatioSampler(defaultSampleKeep, defaultSampleEvery)

	// traceOverride disables debug sampling; set from TRACE or LOG_TRACE.
	traceOverride atomic.Bool
)

const (
	defaultSampleKeep  = 1
	defaultSampleEvery = 50
)

// parseDebugSample reads logging.debug_sample. Empty values and
// non-positive ratios keep the default; an unparsable value such as "off"
// disables sampling.
func parseDebugSample(cfg *coreconfig.Config) (int, int) {
	spec := ""
	if cfg != nil {
		spec = strings.TrimSpace(cfg.Logging.DebugSample)
	}
	if spec == "" {
		return defaultSampleKeep, defaultSampleEvery
	}
	keep, every := parseRatioSpec(spec)
	switch {
	case keep == 0 && every == 0:
		return 0, 0
	case keep <= 0 || every <= 0:
		return defaultSampleKeep, defaultSampleEvery
	}
	return keep, every
}

func traceRequested() bool {
	for _, name := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// logged this time.
func ShouldSampleDebug() bool {
	return traceOverride.Load() || debugSampler.Allow()
}
