// Package buildinfo exposes the version stamped into the binary.
package buildinfo

import "runtime/debug"

// Set with -ldflags, for example:
//
//	-X 'github.com/etf-team/tariffbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/etf-team/tariffbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/etf-team/tariffbot/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// Without ldflags the commit and time recorded by the go tool are used.
func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && Commit == "local" && s.Value != "":
			Commit = s.Value[:min(len(s.Value), 7)]
		case s.Key == "vcs.time" && Date == "":
			Date = s.Value
		}
	}
}

// Summary renders build metadata as a single human-readable line.
func Summary() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
