package guardian

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gzhole/cmdguardian/internal/clog"
	"github.com/gzhole/cmdguardian/internal/config"
	"github.com/gzhole/cmdguardian/internal/logger"
	"github.com/gzhole/cmdguardian/internal/matcher"
	"github.com/gzhole/cmdguardian/internal/normalize"
	"github.com/gzhole/cmdguardian/internal/patterns"
	"github.com/gzhole/cmdguardian/internal/policy"
)

var log = clog.New("guardian")

// Guardian is safe for concurrent use. Build one with New and release it
// with Close.
type Guardian struct {
	maxCommandLength int

	registry   *patterns.Registry
	pol        *policy.Policy
	classifier *policy.Classifier
	matcher    *matcher.Matcher

	recorder *logger.Recorder
	audit    *logger.AuditLogger
	noAudit  bool
	watcher  *patterns.Watcher
}

type Option func(*Guardian)

// WithRegistry uses an already loaded rule registry instead of reading
// the configured rules files.
func WithRegistry(r *patterns.Registry) Option {
	return func(g *Guardian) { g.registry = r }
}

// WithPolicy uses p instead of reading the configured policy file and packs.
func WithPolicy(p *policy.Policy) Option {
	return func(g *Guardian) { g.pol = p }
}

// WithRecorder sends audit events to r. The caller owns r.
func WithRecorder(r *logger.Recorder) Option {
	return func(g *Guardian) { g.recorder = r }
}

// WithoutAudit disables the audit trail.
func WithoutAudit() Option {
	return func(g *Guardian) { g.noAudit = true }
}

// New loads rules and policy and wires the engine. It fails when the rule
// set is unavailable or empty, or when the policy is invalid. An audit log
// that cannot be opened is logged and auditing is disabled.
func New(cfg *config.Config, opts ...Option) (*Guardian, error) {
	g := &Guardian{maxCommandLength: cfg.MaxCommandLength}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxCommandLength <= 0 {
		g.maxCommandLength = config.DefaultMaxCommandLength
	}

	if g.registry == nil {
		reg, err := patterns.Load(patterns.Options{
			RulesPath:        cfg.RulesPath,
			LearnedPath:      cfg.LearnedPath,
			MaxPatternLength: cfg.MaxPatternLength,
		})
		if err != nil {
			return nil, err
		}
		g.registry = reg
	}

	if g.pol == nil {
		pol, err := loadPolicy(cfg)
		if err != nil {
			return nil, err
		}
		g.pol = pol
	}
	classifier, err := policy.NewClassifier(g.pol)
	if err != nil {
		return nil, err
	}
	g.classifier = classifier

	g.matcher = matcher.New(matcher.Options{Workers: cfg.Workers, Timeout: cfg.PatternTimeout})

	if g.recorder == nil && !g.noAudit && cfg.AuditPath != "" {
		al, err := logger.New(cfg.AuditPath)
		if err != nil {
			log.Warn("audit log unavailable, continuing without it: %v", err)
		} else {
			g.audit = al
			g.recorder = logger.NewRecorder(al, cfg.AuditQueueSize)
		}
	}

	if cfg.WatchLearned && g.registry.Store() != nil {
		w, err := patterns.NewWatcher(g.registry)
		if err != nil {
			log.Warn("learned pattern watcher unavailable: %v", err)
		} else if err := w.Start(); err != nil {
			log.Warn("learned pattern watcher failed to start: %v", err)
		} else {
			g.watcher = w
		}
	}

	log.Debug("ready: %d patterns, mode %s", g.registry.Len(), classifier.Mode())
	return g, nil
}

func loadPolicy(cfg *config.Config) (*policy.Policy, error) {
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	if cfg.PacksDir == "" {
		return pol, nil
	}
	merged, infos, err := policy.LoadPacks(cfg.PacksDir, pol)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Err != nil {
			log.Warn("skipping policy pack %s: %v", info.Path, info.Err)
		}
	}
	return merged, nil
}

// Close stops the watcher and flushes pending audit events. Audit
// recorders passed in with WithRecorder are left open.
func (g *Guardian) Close() error {
	var firstErr error
	if g.watcher != nil {
		if err := g.watcher.Stop(); err != nil {
			firstErr = err
		}
	}
	if g.audit != nil {
		g.recorder.Close()
		if err := g.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Evaluate returns the verdict for command without side effects.
func (g *Guardian) Evaluate(command string) Verdict {
	if n := utf8.RuneCountInString(command); n > g.maxCommandLength {
		return Verdict{Reason: fmt.Sprintf(reasonTooLongFmt, n, g.maxCommandLength), Stage: StageLength}
	}
	if strings.TrimSpace(command) == "" {
		return Verdict{Reason: reasonEmpty, Stage: StageLength}
	}

	normalized := normalize.Normalize(command)

	zone := g.classifier.Classify(normalized)
	if !zone.Allowed {
		return Verdict{Reason: fmt.Sprintf(reasonZoneFmt, zone.Reason), Stage: StageZone, Zone: zone.Zone}
	}

	res := g.matcher.Match(command, normalized, g.registry.Snapshot())
	if res.Matched {
		return Verdict{
			Reason: fmt.Sprintf(reasonPatternFmt, res.View, res.Label()),
			Stage:  StagePattern,
			Zone:   zone.Zone,
		}
	}
	return Verdict{Approved: true, Stage: StagePassed, Zone: zone.Zone}
}

// Validate evaluates command and hands a masked record of the decision to
// the audit trail. Auditing never blocks and never changes the verdict.
func (g *Guardian) Validate(command, task, provider string) Verdict {
	v := g.Evaluate(command)
	if g.recorder == nil {
		return v
	}

	if task == "" {
		task = defaultTask
	}
	if provider == "" {
		provider = defaultProvider
	}
	status := logger.StatusExecuted
	if !v.Approved {
		status = logger.StatusRejected
	}
	ev := logger.NewEvent(task, command, status, provider, v.Reason)
	ev.Stage = string(v.Stage)
	ev.Zone = string(v.Zone)
	g.recorder.Record(ev)
	return v
}

// Learn adds a rule to the live rule set and the learned store. See
// patterns.Registry.Learn for the result semantics.
func (g *Guardian) Learn(pattern, description string) (patterns.LearnResult, error) {
	res, err := g.registry.Learn(pattern, description)
	if err == nil && !res.Duplicate {
		log.Info("learned new pattern (%d now loaded)", g.registry.Len())
	}
	return res, err
}

func (g *Guardian) Health() Health {
	n := g.registry.Len()
	h := Health{
		Ready:          n > 0,
		PatternsLoaded: n,
		Mode:           g.classifier.Mode(),
	}
	if h.Ready {
		h.Status = "healthy"
	} else {
		h.Status = "unavailable"
	}
	return h
}

// Registry exposes the live rule set.
func (g *Guardian) Registry() *patterns.Registry {
	return g.registry
}

// Policy returns the effective zone policy after packs are merged.
func (g *Guardian) Policy() *policy.Policy {
	return g.pol
}
