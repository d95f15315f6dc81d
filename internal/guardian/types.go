// Package guardian decides whether a command proposed by an agent may run.
//
// Evaluation order:
//
//	command ──► length guard ──► zone check ──► pattern check ──► verdict
//	                │                │                │
//	             reject           reject           reject
//
// The verdict depends only on the command, the current rule snapshot and
// the zone policy. Auditing happens after the verdict and never changes it.
package guardian

import (
	"github.com/gzhole/cmdguardian/internal/policy"
)

// Stage is where evaluation stopped.
type Stage string

const (
	StageLength  Stage = "length"
	StageZone    Stage = "zone"
	StagePattern Stage = "pattern"
	StagePassed  Stage = "passed"
)

// Verdict is the answer returned to the caller. Reason names a category,
// never the text of the rule that fired.
type Verdict struct {
	Approved bool        `json:"approved"`
	Reason   string      `json:"reason"`
	Stage    Stage       `json:"stage,omitempty"`
	Zone     policy.Zone `json:"zone,omitempty"`
}

// Health reports whether the engine is able to answer.
type Health struct {
	Status         string      `json:"status"`
	Ready          bool        `json:"ready"`
	PatternsLoaded int         `json:"patterns_loaded"`
	Mode           policy.Mode `json:"mode"`
}

const (
	reasonEmpty      = "Blocked: empty command"
	reasonTooLongFmt = "Blocked: command exceeds max length (%d > %d)"
	reasonZoneFmt    = "Blocked (Zone): %s"
	reasonPatternFmt = "Blocked (%s): %s"
	defaultTask      = "Unknown Task"
	defaultProvider  = "unknown"
)
