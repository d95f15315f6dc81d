package patterns

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/cmdguardian/internal/clog"
)

var log = clog.New("patterns")

// Snapshot is an immutable, ordered view of the rule set: static rules in
// file order, then learned rules in the order they were added.
type Snapshot struct {
	patterns []*Pattern
	version  uint64
}

// NewSnapshot returns a standalone snapshot over pats, for callers that
// evaluate a fixed rule set without a registry.
func NewSnapshot(pats ...*Pattern) *Snapshot {
	return &Snapshot{patterns: pats, version: 1}
}

func (s *Snapshot) Patterns() []*Pattern {
	return s.patterns
}

func (s *Snapshot) Len() int {
	return len(s.patterns)
}

// Version increases by one for every published change.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Options configures Load.
type Options struct {
	RulesPath        string
	LearnedPath      string
	MaxPatternLength int
}

// LearnResult reports what Learn did. Accepted means the rule is live in
// the current snapshot; Persisted means it also reached the learned store.
type LearnResult struct {
	Accepted  bool
	Persisted bool
	Duplicate bool
}

// Registry serves snapshots to readers without locking. Writers serialize
// on mu, build a new snapshot and publish it.
type Registry struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	store   *Store
	maxLen  int
}

// Load builds a registry from the static rules file and, if configured,
// the learned store. A missing or unparseable rules file is fatal, as is a
// rule set with no usable pattern. Problems with the learned store are
// logged and skipped.
func Load(opts Options) (*Registry, error) {
	data, err := os.ReadFile(opts.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRulesUnavailable, err)
	}
	static, err := ParseRules(data, opts.MaxPatternLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRulesUnavailable, opts.RulesPath, err)
	}

	var store *Store
	if opts.LearnedPath != "" {
		store = NewStore(opts.LearnedPath)
	}
	return New(static, store, opts.MaxPatternLength)
}

// New builds a registry from already compiled static patterns and an
// optional learned store.
func New(static []*Pattern, store *Store, maxLen int) (*Registry, error) {
	r := &Registry{store: store, maxLen: maxLen}

	all := make([]*Pattern, 0, len(static))
	all = append(all, static...)
	if store != nil {
		recs, err := store.Load()
		if err != nil {
			log.Warn("learned patterns unavailable: %v", err)
		}
		all = appendRecords(all, recs, maxLen)
	}

	if len(all) == 0 {
		return nil, ErrNoPatterns
	}
	r.current.Store(&Snapshot{patterns: all, version: 1})
	log.Info("loaded %d patterns (%d static, %d learned)", len(all), len(static), len(all)-len(static))
	return r, nil
}

// Snapshot returns the current rule set.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

func (r *Registry) Len() int {
	return r.Snapshot().Len()
}

// Store returns the learned store, or nil when none is configured.
func (r *Registry) Store() *Store {
	return r.store
}

// Learn compiles and publishes a new rule, then appends it to the learned
// store. Re-learning an expression already in the registry is a no-op that
// still reports Accepted. If the store write fails the rule stays live and
// the returned error wraps ErrPersist.
func (r *Registry) Learn(expr, description string) (LearnResult, error) {
	re, err := Compile(expr, r.maxLen)
	if err != nil {
		return LearnResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if contains(cur, expr) {
		return LearnResult{Accepted: true, Duplicate: true}, nil
	}

	p := &Pattern{
		Regex:       re,
		Expr:        expr,
		Category:    "learned",
		Description: description,
		Source:      SourceLearned,
	}
	r.publish(cur, []*Pattern{p})

	if r.store == nil {
		return LearnResult{Accepted: true}, fmt.Errorf("%w: %w", ErrPersist, ErrNoStore)
	}
	rec := Record{Pattern: expr, Description: description, AddedAt: time.Now().UTC()}
	if _, err := r.store.Append(rec); err != nil {
		log.Warn("learned pattern is live but not persisted: %v", err)
		return LearnResult{Accepted: true}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return LearnResult{Accepted: true, Persisted: true}, nil
}

// Merge adds records that are not yet in the registry and returns how many
// were added. Records that fail to compile are logged and skipped. Nothing
// is ever removed.
func (r *Registry) Merge(recs []Record) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	var fresh []Record
	for _, rec := range recs {
		if !contains(cur, rec.Pattern) {
			fresh = append(fresh, rec)
		}
	}
	added := appendRecords(nil, fresh, r.maxLen)
	if len(added) == 0 {
		return 0
	}
	r.publish(cur, added)
	return len(added)
}

// publish must be called with mu held.
func (r *Registry) publish(cur *Snapshot, extra []*Pattern) {
	next := make([]*Pattern, 0, len(cur.patterns)+len(extra))
	next = append(next, cur.patterns...)
	next = append(next, extra...)
	r.current.Store(&Snapshot{patterns: next, version: cur.version + 1})
}

func contains(s *Snapshot, expr string) bool {
	for _, p := range s.patterns {
		if p.Expr == expr {
			return true
		}
	}
	return false
}

func appendRecords(dst []*Pattern, recs []Record, maxLen int) []*Pattern {
	seen := make(map[string]bool, len(dst))
	for _, p := range dst {
		seen[p.Expr] = true
	}
	for _, rec := range recs {
		if seen[rec.Pattern] {
			continue
		}
		re, err := Compile(rec.Pattern, maxLen)
		if err != nil {
			log.Warn("skipping learned pattern %q: %v", rec.Pattern, err)
			continue
		}
		seen[rec.Pattern] = true
		dst = append(dst, &Pattern{
			Regex:       re,
			Expr:        rec.Pattern,
			Category:    "learned",
			Description: rec.Description,
			Source:      SourceLearned,
		})
	}
	return dst
}

type ruleEntry struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
	Structural  bool   `yaml:"structural"`
}

type rulesFile struct {
	Patterns yaml.Node `yaml:"patterns"`
}

// ParseRules parses a static rules document:
//
//	patterns:
//	  <category>:
//	    - pattern: <regex>
//	      description: <text>
//	      structural: <bool>
//
// Categories keep their file order. Entries that are not lists, lack a
// pattern or fail to compile are logged and skipped.
func ParseRules(data []byte, maxLen int) ([]*Pattern, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Patterns.Kind == 0 {
		return nil, errors.New("missing patterns section")
	}
	if f.Patterns.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: patterns must be a mapping of category to list", f.Patterns.Line)
	}

	var out []*Pattern
	content := f.Patterns.Content
	for i := 0; i+1 < len(content); i += 2 {
		category := content[i].Value
		var entries []ruleEntry
		if err := content[i+1].Decode(&entries); err != nil {
			log.Warn("skipping category %q: %v", category, err)
			continue
		}
		for _, e := range entries {
			if e.Pattern == "" {
				continue
			}
			re, err := Compile(e.Pattern, maxLen)
			if err != nil {
				log.Warn("skipping %s pattern %q: %v", category, e.Pattern, err)
				continue
			}
			out = append(out, &Pattern{
				Regex:       re,
				Expr:        e.Pattern,
				Category:    category,
				Description: e.Description,
				Structural:  e.Structural,
				Source:      SourceStatic,
			})
		}
	}
	return out, nil
}
