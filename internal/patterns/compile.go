// Package patterns holds the versioned rule set: static rules loaded at
// startup plus learned rules appended at runtime. Readers work on immutable
// snapshots; writers publish a new snapshot atomically.
package patterns

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrPatternEmpty     = errors.New("pattern is empty")
	ErrPatternTooLong   = errors.New("pattern exceeds maximum length")
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrRulesUnavailable = errors.New("rules file unavailable")
	ErrNoPatterns       = errors.New("no patterns loaded")
	ErrPersist          = errors.New("learned pattern not persisted")
	ErrNoStore          = errors.New("no learned store configured")
)

// DefaultMaxPatternLength bounds the source text of a single rule.
const DefaultMaxPatternLength = 512

// Source records where a pattern came from.
type Source string

const (
	SourceStatic  Source = "static"
	SourceLearned Source = "learned"
)

// Pattern is a compiled rule. It is never modified after Compile.
type Pattern struct {
	Regex       *regexp.Regexp
	Expr        string
	Category    string
	Description string
	Structural  bool
	Source      Source
}

// Label is the human-readable category used in verdict reasons.
func (p *Pattern) Label() string {
	return Label(p.Category)
}

// Label turns a category key such as "sensitive_files" into
// "Sensitive Files".
func Label(category string) string {
	if category == "" {
		return "Unknown"
	}
	words := strings.FieldsFunc(category, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// Compile validates and compiles a rule expression. Unbounded wildcards
// outside character classes are made lazy and matching is case-insensitive.
// maxLen <= 0 selects DefaultMaxPatternLength.
func Compile(expr string, maxLen int) (*regexp.Regexp, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxPatternLength
	}
	if strings.TrimSpace(expr) == "" {
		return nil, ErrPatternEmpty
	}
	if len(expr) > maxLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrPatternTooLong, len(expr), maxLen)
	}
	re, err := regexp.Compile("(?i)" + lazify(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// lazify rewrites ".*" and ".+" to their non-greedy forms. Escaped dots,
// dots inside [...] and quantifiers already followed by '?' are left alone.
func lazify(expr string) string {
	var b strings.Builder
	b.Grow(len(expr) + 8)

	inClass := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '\\' && i+1 < len(expr):
			b.WriteByte(c)
			b.WriteByte(expr[i+1])
			i++
			continue
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
			b.WriteByte(c)
			// A leading ']' (after an optional '^') is a literal.
			if i+1 < len(expr) && expr[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
			if i+1 < len(expr) && expr[i+1] == ']' {
				b.WriteByte(']')
				i++
			}
			continue
		case c == '.' && i+1 < len(expr) && (expr[i+1] == '*' || expr[i+1] == '+'):
			b.WriteByte('.')
			b.WriteByte(expr[i+1])
			i++
			if i+1 >= len(expr) || expr[i+1] != '?' {
				b.WriteByte('?')
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
