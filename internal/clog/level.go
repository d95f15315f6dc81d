// Package clog is the operational logger for cmdguardian. It is separate
// from the audit trail written by internal/logger: clog records what the
// engine itself is doing (rule loading, degraded conditions, timeouts),
// never verdicts for individual commands.
//
// Levels:
//   - Debug: per-request diagnostics, only with --debug
//   - Info: startup and reload events
//   - Warn: degraded but safe conditions (skipped rule, lost audit entry)
//   - Error: failures that reduce protection or durability
package clog

import "strings"

// Level is the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the uppercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name (case-insensitive).
// Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "err":
		return LevelError
	default:
		return LevelInfo
	}
}
