package clog

import (
	"io"
	"sync"
)

var (
	stdMu sync.RWMutex
	std   = NewLogger()
)

func current() *Logger {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std
}

// New returns a component logger bound to the global logger. Components
// created at package init follow later ReplaceGlobal calls.
func New(prefix string) *Component {
	return &Component{prefix: prefix}
}

// Configure sets the global level and, when logPath is non-empty, adds
// file output.
func Configure(logPath string, debug bool) error {
	l := current()
	if debug {
		l.SetLevel(LevelDebug)
	} else {
		l.SetLevel(LevelInfo)
	}
	if logPath == "" {
		return nil
	}
	f, err := OpenLogFile(logPath)
	if err != nil {
		return err
	}
	l.SetFileOutput(f)
	return nil
}

// Close closes the global file output if it is closable.
func Close() error {
	l := current()
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.fileWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReplaceGlobal swaps the global logger and returns the previous one.
// Tests use it to capture output.
func ReplaceGlobal(l *Logger) *Logger {
	stdMu.Lock()
	defer stdMu.Unlock()
	old := std
	std = l
	return old
}

// Discard silences the global logger.
func Discard() {
	l := current()
	l.SetFileOutput(nil)
	l.SetErrOutput(nil)
}

// TestLogger returns a debug-level logger writing everything to w.
func TestLogger(w io.Writer) *Logger {
	l := NewLogger()
	l.SetFileOutput(w)
	l.SetErrOutput(nil)
	l.SetLevel(LevelDebug)
	return l
}

func Debug(format string, args ...any) { current().Debug(format, args...) }
func Info(format string, args ...any)  { current().Info(format, args...) }
func Warn(format string, args ...any)  { current().Warn(format, args...) }
func Error(format string, args ...any) { current().Error(format, args...) }
