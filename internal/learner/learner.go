// Package learner mines the audit trail for tokens that keep showing up in
// rejected commands and turns the frequent ones into candidate rules.
// It runs offline; a live engine picks results up on restart or through
// the learned-store watcher.
package learner

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gzhole/cmdguardian/internal/clog"
	"github.com/gzhole/cmdguardian/internal/logger"
	"github.com/gzhole/cmdguardian/internal/patterns"
	"github.com/gzhole/cmdguardian/internal/redact"
)

var log = clog.New("learner")

var ErrInsufficientData = errors.New("insufficient data")

const (
	StatusPending  = "pending_review"
	StatusApproved = "approved"
	StatusDeclined = "declined"
)

var (
	tokenRegex = regexp.MustCompile(`\b\w+\b`)
	fenceStrip = strings.NewReplacer("```bash", "", "```sh", "", "```", "")

	// Audit commands are masked; the placeholder is not a useful token.
	maskToken = strings.Trim(redact.Placeholder, "*")
)

type Options struct {
	Window     int
	MinSamples int
	TopN       int
	Threshold  float64
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{Window: 100, MinSamples: 5, TopN: 10, Threshold: 30}
}

type Candidate struct {
	Token       string  `yaml:"token" json:"token"`
	Occurrences int     `yaml:"occurrences" json:"occurrences"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
	Pattern     string  `yaml:"pattern" json:"pattern"`
	Status      string  `yaml:"status" json:"status"`
}

// Analyze ranks the tokens of the most recent rejected events. It returns
// the top candidates, most frequent first, and the number of samples used.
// Candidates at or above the threshold are marked approved, the rest
// pending review.
func Analyze(events []logger.AuditEvent, opts Options) ([]Candidate, int, error) {
	rejected := logger.Rejected(events, opts.Window)
	if len(rejected) < opts.MinSamples {
		return nil, len(rejected), fmt.Errorf("%w: %d rejected commands (need at least %d)", ErrInsufficientData, len(rejected), opts.MinSamples)
	}

	counts := make(map[string]int)
	var order []string
	for _, ev := range rejected {
		cmd := strings.TrimSpace(fenceStrip.Replace(strings.TrimSpace(ev.Command)))
		for _, tok := range tokenRegex.FindAllString(cmd, -1) {
			if tok == maskToken {
				continue
			}
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if opts.TopN > 0 && len(order) > opts.TopN {
		order = order[:opts.TopN]
	}

	samples := len(rejected)
	candidates := make([]Candidate, 0, len(order))
	for _, tok := range order {
		confidence := math.Round(float64(counts[tok])/float64(samples)*100*100) / 100
		status := StatusPending
		if confidence >= opts.Threshold {
			status = StatusApproved
		}
		candidates = append(candidates, Candidate{
			Token:       tok,
			Occurrences: counts[tok],
			Confidence:  confidence,
			Pattern:     `\b` + tok + `\b`,
			Status:      status,
		})
	}
	return candidates, samples, nil
}

// Reviewer confirms an approved candidate. Returning false declines it.
type Reviewer func(c Candidate, samples int) bool

type Report struct {
	GeneratedAt time.Time   `yaml:"generated_at" json:"generated_at"`
	Samples     int         `yaml:"samples" json:"samples"`
	Added       int         `yaml:"added" json:"added"`
	Suggestions []Candidate `yaml:"suggestions" json:"suggestions"`
}

// Run reads the audit trail, analyzes it, appends approved candidates to
// the learned store and writes every candidate to suggestionsPath. With a
// non-nil reviewer each approved candidate must also be confirmed.
func Run(auditPath string, store *patterns.Store, suggestionsPath string, opts Options, review Reviewer) (*Report, error) {
	events, err := logger.ReadEvents(auditPath)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	candidates, samples, err := Analyze(events, opts)
	if err != nil {
		return nil, err
	}

	var records []patterns.Record
	now := time.Now().UTC()
	for i := range candidates {
		c := &candidates[i]
		if c.Status != StatusApproved {
			continue
		}
		if review != nil && !review(*c, samples) {
			c.Status = StatusDeclined
			continue
		}
		records = append(records, patterns.Record{
			Pattern:     c.Pattern,
			Description: fmt.Sprintf("mined from %d rejected commands", samples),
			AddedAt:     now,
			Token:       c.Token,
			Confidence:  c.Confidence,
		})
	}

	report := &Report{GeneratedAt: now, Samples: samples, Suggestions: candidates}

	if len(records) > 0 {
		added, err := store.Append(records...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", patterns.ErrPersist, err)
		}
		report.Added = added
	}

	if suggestionsPath != "" {
		if err := patterns.WriteYAML(suggestionsPath, report); err != nil {
			log.Warn("could not write suggestions to %s: %v", suggestionsPath, err)
		}
	}

	log.Info("analyzed %d rejected commands: %d candidates, %d added", samples, len(candidates), report.Added)
	return report, nil
}
