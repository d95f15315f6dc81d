// Package matcher tests a command against a rule snapshot. Every regex
// evaluation runs on a bounded pool of worker slots under a per-pattern
// deadline.
package matcher

import (
	"regexp"
	"runtime"
	"time"

	"github.com/gzhole/cmdguardian/internal/clog"
	"github.com/gzhole/cmdguardian/internal/patterns"
)

var log = clog.New("matcher")

const DefaultTimeout = time.Second

// View names which form of the command a rule matched.
type View string

const (
	ViewRaw        View = "Raw"
	ViewNormalized View = "Normalized"
)

type Result struct {
	Matched  bool
	Pattern  *patterns.Pattern
	Category string
	View     View
	// TimedOut lists the expressions that hit the deadline and were
	// treated as non-matching.
	TimedOut []string
}

// Label is the human-readable category of the matched rule.
func (r Result) Label() string {
	return patterns.Label(r.Category)
}

type Options struct {
	Workers int
	Timeout time.Duration
}

// Matcher is safe for concurrent use.
type Matcher struct {
	slots   chan struct{}
	timeout time.Duration
	match   func(re *regexp.Regexp, s string) bool
}

// New returns a matcher. Zero options select runtime.NumCPU workers and
// DefaultTimeout.
func New(opts Options) *Matcher {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Matcher{
		slots:   make(chan struct{}, opts.Workers),
		timeout: opts.Timeout,
		match: func(re *regexp.Regexp, s string) bool {
			return re.MatchString(s)
		},
	}
}

// Match walks the snapshot in order. For each rule the raw command is
// tested first; non-structural rules are then tested against the
// normalized command. The first hit wins. A rule that times out counts as
// a non-match and evaluation moves on.
func (m *Matcher) Match(raw, normalized string, snap *patterns.Snapshot) Result {
	var timedOut []string
	for _, p := range snap.Patterns() {
		hit, late := m.test(p, raw)
		if late {
			timedOut = append(timedOut, p.Expr)
		}
		if hit {
			return Result{Matched: true, Pattern: p, Category: p.Category, View: ViewRaw, TimedOut: timedOut}
		}
		if p.Structural {
			continue
		}

		hit, late = m.test(p, normalized)
		if late {
			timedOut = append(timedOut, p.Expr)
		}
		if hit {
			return Result{Matched: true, Pattern: p, Category: p.Category, View: ViewNormalized, TimedOut: timedOut}
		}
	}
	return Result{TimedOut: timedOut}
}

// test reports (matched, timedOut). The deadline covers both waiting for a
// slot and the evaluation itself. A late evaluation keeps its slot until
// it finishes, so stuck evaluations never exceed the pool size.
func (m *Matcher) test(p *patterns.Pattern, text string) (bool, bool) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case m.slots <- struct{}{}:
	case <-timer.C:
		log.Warn("no worker slot within %s for %s rule; treating as no match", m.timeout, p.Category)
		return false, true
	}

	done := make(chan bool, 1)
	go func() {
		defer func() { <-m.slots }()
		done <- m.match(p.Regex, text)
	}()

	select {
	case hit := <-done:
		return hit, false
	case <-timer.C:
		log.Warn("%s rule exceeded %s; treating as no match", p.Category, m.timeout)
		return false, true
	}
}
