package clog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8B545"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05A3A"))
	styleFaint = lipgloss.NewStyle().Faint(true)
)

// Logger writes leveled messages to an optional file and to stderr.
// The file receives every message at or above the level; stderr only
// receives Warn and Error.
type Logger struct {
	mu         sync.Mutex
	level      Level
	fileWriter io.Writer
	errWriter  io.Writer
	colored    bool
}

// NewLogger returns a logger at Info level writing warnings to stderr.
func NewLogger() *Logger {
	return &Logger{
		level:     LevelInfo,
		errWriter: os.Stderr,
		colored:   term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// SetLevel sets the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetFileOutput sets the file writer. Nil disables file logging.
func (l *Logger) SetFileOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fileWriter = w
}

// SetErrOutput sets the stderr writer. Nil disables stderr logging.
// Color is only used when w is the process stderr attached to a terminal.
func (l *Logger) SetErrOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errWriter = w
	l.colored = w == os.Stderr && term.IsTerminal(int(os.Stderr.Fd()))
}

// Named returns a component logger that prefixes every message.
func (l *Logger) Named(prefix string) *Component {
	return &Component{prefix: prefix, base: l}
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, "", format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, "", format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, "", format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, "", format, args...) }

func (l *Logger) log(level Level, prefix, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if prefix != "" {
		msg = "[" + prefix + "] " + msg
	}

	if l.fileWriter != nil {
		timestamp := time.Now().UTC().Format(time.RFC3339)
		_, _ = fmt.Fprintf(l.fileWriter, "%s [%s] %s\n", timestamp, level, msg)
	}

	if l.errWriter != nil && level >= LevelWarn {
		label := "[" + level.String() + "]"
		if l.colored {
			label = levelStyle(level).Render(label)
			msg = styleFaint.Render(msg)
		}
		_, _ = fmt.Fprintf(l.errWriter, "%s %s\n", label, msg)
	}
}

func levelStyle(level Level) lipgloss.Style {
	switch level {
	case LevelDebug:
		return styleDebug
	case LevelWarn:
		return styleWarn
	case LevelError:
		return styleError
	default:
		return styleInfo
	}
}

// Component is a Logger view bound to a prefix such as "patterns".
type Component struct {
	prefix string
	base   *Logger
}

func (c *Component) logger() *Logger {
	if c.base != nil {
		return c.base
	}
	return current()
}

func (c *Component) Debug(format string, args ...any) {
	c.logger().log(LevelDebug, c.prefix, format, args...)
}

func (c *Component) Info(format string, args ...any) {
	c.logger().log(LevelInfo, c.prefix, format, args...)
}

func (c *Component) Warn(format string, args ...any) {
	c.logger().log(LevelWarn, c.prefix, format, args...)
}

func (c *Component) Error(format string, args ...any) {
	c.logger().log(LevelError, c.prefix, format, args...)
}

// OpenLogFile opens path for appending, creating parent directories.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
