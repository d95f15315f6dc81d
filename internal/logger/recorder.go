package logger

import (
	"sync"

	"github.com/gzhole/cmdguardian/internal/clog"
)

var log = clog.New("audit")

// Sink receives audit events. *AuditLogger is the file-backed Sink.
type Sink interface {
	Log(event AuditEvent) error
}

const DefaultQueueSize = 256

// Recorder decouples callers from the audit sink. Record never blocks: a
// full queue drops the event with a warning. A single goroutine writes
// events in the order they were accepted.
type Recorder struct {
	sink  Sink
	queue chan AuditEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(sink Sink, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &Recorder{
		sink:  sink,
		queue: make(chan AuditEvent, queueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an event and reports whether it was accepted.
func (r *Recorder) Record(event AuditEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- event:
		return true
	default:
		log.Warn("audit queue full; dropping %s event %s", event.Status, event.ID)
		return false
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		if err := r.sink.Log(ev); err != nil {
			log.Warn("audit write failed: %v", err)
		}
	}
}

// Close stops accepting events and waits until the queue is drained.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}
