package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
	"mvdan.cc/sh/v3/syntax"

	"github.com/gzhole/cmdguardian/internal/normalize"
)

const (
	ReasonForbidden    = "forbidden binary"
	ReasonUnclassified = "unclassified binary"
)

// Classification is the outcome of the zone check.
type Classification struct {
	Allowed bool
	Zone    Zone
	Binary  string
	Reason  string
}

type zoneSet struct {
	exact map[string]bool
	globs []glob.Glob
}

func newZoneSet(binaries []string) (*zoneSet, error) {
	zs := &zoneSet{exact: make(map[string]bool, len(binaries))}
	for _, b := range binaries {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if !strings.ContainsAny(b, "*?[{") {
			zs.exact[b] = true
			continue
		}
		g, err := glob.Compile(b)
		if err != nil {
			return nil, fmt.Errorf("%w: binary pattern %q: %v", ErrInvalidPolicy, b, err)
		}
		zs.globs = append(zs.globs, g)
	}
	return zs, nil
}

func (z *zoneSet) has(name string) bool {
	if name == "" {
		return false
	}
	if z.exact[name] {
		return true
	}
	for _, g := range z.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Classifier assigns the leading binary of a normalized command to a zone.
// It is read-only after construction and safe for concurrent use.
type Classifier struct {
	mode            Mode
	inspectPipeline bool
	green           *zoneSet
	yellow          *zoneSet
	red             *zoneSet
}

func NewClassifier(p *Policy) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{mode: p.Mode, inspectPipeline: p.InspectPipeline}
	var err error
	if c.green, err = newZoneSet(p.Zones.Green.Binaries); err != nil {
		return nil, err
	}
	if c.yellow, err = newZoneSet(p.Zones.Yellow.Binaries); err != nil {
		return nil, err
	}
	if c.red, err = newZoneSet(p.Zones.Red.Binaries); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Classifier) Mode() Mode {
	return c.mode
}

// Classify checks the first token of a normalized command. Red membership
// (by name or path base) rejects in every mode. In enforced mode a binary
// in neither green nor yellow is rejected. Green and yellow need an exact
// token match.
func (c *Classifier) Classify(normalized string) Classification {
	bin := normalize.Executable(normalized)

	if c.isRed(bin) {
		return Classification{Zone: ZoneRed, Binary: bin, Reason: ReasonForbidden}
	}
	if c.inspectPipeline {
		for _, word := range commandWords(normalized) {
			if c.isRed(word) {
				return Classification{Zone: ZoneRed, Binary: word, Reason: ReasonForbidden}
			}
		}
	}

	switch {
	case c.green.has(bin):
		return Classification{Allowed: true, Zone: ZoneGreen, Binary: bin}
	case c.yellow.has(bin):
		return Classification{Allowed: true, Zone: ZoneYellow, Binary: bin}
	case c.mode == ModeEnforced:
		return Classification{Zone: ZoneNone, Binary: bin, Reason: ReasonUnclassified}
	default:
		return Classification{Allowed: true, Zone: ZoneNone, Binary: bin}
	}
}

func (c *Classifier) isRed(bin string) bool {
	if bin == "" {
		return false
	}
	return c.red.has(bin) || c.red.has(path.Base(bin))
}

// Binaries that run their first argument as a command.
var wrappers = map[string]bool{
	"sudo": true, "env": true, "nohup": true, "exec": true, "command": true,
	"xargs": true, "timeout": true, "nice": true, "time": true, "doas": true,
}

// commandWords returns the command word of every simple command in a
// pipeline or list, looking through common wrappers. It returns nil when
// the text does not parse as shell.
func commandWords(command string) []string {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil
	}

	var words []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		for _, w := range call.Args {
			lit := w.Lit()
			if lit == "" {
				break
			}
			if strings.HasPrefix(lit, "-") {
				continue
			}
			words = append(words, lit)
			if !wrappers[path.Base(lit)] {
				break
			}
		}
		return true
	})
	return words
}
