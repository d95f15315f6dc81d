// Package logger writes the audit trail: one JSON object per validation,
// appended to a JSONL file with credentials masked.
package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/cmdguardian/internal/redact"
)

const (
	StatusExecuted = "executed"
	StatusRejected = "rejected"
)

const defaultMaxLogBytes = 10 << 20

type AuditEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Task      string `json:"task,omitempty"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	Provider  string `json:"llm_provider,omitempty"`
	Reason    string `json:"guardian_reason,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Zone      string `json:"zone,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current UTC time.
func NewEvent(task, command, status, provider, reason string) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Task:      task,
		Command:   command,
		Status:    status,
		Provider:  provider,
		Reason:    reason,
	}
}

type AuditLogger struct {
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	mu       sync.Mutex
}

// New opens path for appending, creating it with mode 0600. A file already
// at the size limit is rotated to path.1 first.
func New(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	l := &AuditLogger{path: path, maxBytes: defaultMaxLogBytes}
	if info, err := os.Stat(path); err == nil && info.Size() >= l.maxBytes {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, err
		}
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.file = file
	l.size = info.Size()
	return nil
}

func (l *AuditLogger) Path() string {
	return l.path
}

// Log masks the free-text fields and appends the event as one line.
func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event.Task = redact.Mask(event.Task)
	event.Command = redact.Mask(event.Command)
	event.Reason = redact.Mask(event.Reason)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if l.size+int64(len(data)) > l.maxBytes && l.size > 0 {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

// rotate must be called with mu held.
func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ReadEvents returns the events in the file, oldest first. Lines that are
// not valid JSON are skipped. A missing file yields no events.
func ReadEvents(path string) ([]AuditEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev AuditEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Rejected returns the last n rejected events, newest first. n <= 0 means
// all of them.
func Rejected(events []AuditEvent, n int) []AuditEvent {
	var out []AuditEvent
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Status != StatusRejected {
			continue
		}
		out = append(out, events[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}
