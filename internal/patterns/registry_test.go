package patterns

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const testRules = `
patterns:
  subshell_execution:
    - pattern: '\$\('
      structural: true
  sensitive_files:
    - pattern: '/etc/passwd'
      description: account database
    - pattern: '(broken'
    - description: no pattern here
  not_a_list: oops
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseRules_OrderAndSkips(t *testing.T) {
	pats, err := ParseRules([]byte(testRules), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(pats))
	}
	if pats[0].Category != "subshell_execution" || !pats[0].Structural {
		t.Errorf("expected structural subshell rule first, got %+v", pats[0])
	}
	if pats[1].Category != "sensitive_files" || pats[1].Description != "account database" {
		t.Errorf("unexpected second rule: %+v", pats[1])
	}
	for _, p := range pats {
		if p.Source != SourceStatic {
			t.Errorf("expected static source, got %s", p.Source)
		}
	}
}

func TestParseRules_Malformed(t *testing.T) {
	for _, doc := range []string{"patterns: [a, b]", "other: 1", "patterns: {{"} {
		if _, err := ParseRules([]byte(doc), 0); err == nil {
			t.Errorf("expected error for %q", doc)
		}
	}
}

func TestDefaultRules_Parse(t *testing.T) {
	pats, err := ParseRules(DefaultRules(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) < 10 {
		t.Errorf("expected bundled rules to compile, got %d", len(pats))
	}
}

func TestLoad_MissingRulesFile(t *testing.T) {
	_, err := Load(Options{RulesPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if !errors.Is(err, ErrRulesUnavailable) {
		t.Errorf("expected ErrRulesUnavailable, got %v", err)
	}
}

func TestLoad_UnparseableRulesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", "patterns: [")
	_, err := Load(Options{RulesPath: path})
	if !errors.Is(err, ErrRulesUnavailable) {
		t.Errorf("expected ErrRulesUnavailable, got %v", err)
	}
}

func TestLoad_ZeroPatternsFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.yaml", "patterns:\n  bad:\n    - pattern: '(unclosed'\n")
	_, err := Load(Options{RulesPath: path, LearnedPath: filepath.Join(dir, "learned.yaml")})
	if !errors.Is(err, ErrNoPatterns) {
		t.Errorf("expected ErrNoPatterns, got %v", err)
	}
}

func TestLoad_LearnedAppendedAfterStatic(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", testRules)
	learned := writeFile(t, dir, "learned.yaml", "learned_patterns:\n  - pattern: '\\bnmap\\b'\n  - pattern: '/etc/passwd'\n")

	reg, err := Load(Options{RulesPath: rules, LearnedPath: learned})
	if err != nil {
		t.Fatal(err)
	}
	pats := reg.Snapshot().Patterns()
	if len(pats) != 3 {
		t.Fatalf("expected 3 patterns, got %d", len(pats))
	}
	last := pats[2]
	if last.Source != SourceLearned || last.Expr != `\bnmap\b` {
		t.Errorf("expected learned nmap rule last, got %+v", last)
	}
}

func TestLoad_CorruptLearnedIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", testRules)
	learned := writeFile(t, dir, "learned.yaml", "learned_patterns: [")

	reg, err := Load(Options{RulesPath: rules, LearnedPath: learned})
	if err != nil {
		t.Fatalf("expected corrupt learned store to be skipped, got %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 patterns, got %d", reg.Len())
	}
}

func TestLearn_PublishesAndPersists(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", testRules)
	learnedPath := filepath.Join(dir, "learned.yaml")

	reg, err := Load(Options{RulesPath: rules, LearnedPath: learnedPath})
	if err != nil {
		t.Fatal(err)
	}
	before := reg.Snapshot()

	res, err := reg.Learn(`\bnmap\b`, "network scanner")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted || !res.Persisted || res.Duplicate {
		t.Errorf("unexpected result: %+v", res)
	}

	after := reg.Snapshot()
	if after.Len() != before.Len()+1 {
		t.Errorf("expected %d patterns, got %d", before.Len()+1, after.Len())
	}
	if before.Len() != 2 {
		t.Errorf("expected old snapshot to stay unchanged, got %d", before.Len())
	}
	if after.Version() <= before.Version() {
		t.Errorf("expected version to increase, got %d -> %d", before.Version(), after.Version())
	}

	recs, err := NewStore(learnedPath).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Pattern != `\bnmap\b` || recs[0].Description != "network scanner" {
		t.Errorf("unexpected store contents: %+v", recs)
	}
	if recs[0].AddedAt.IsZero() {
		t.Error("expected added_at to be set")
	}
}

func TestLearn_Duplicate(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", testRules)
	reg, err := Load(Options{RulesPath: rules, LearnedPath: filepath.Join(dir, "learned.yaml")})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Learn("nmap", ""); err != nil {
		t.Fatal(err)
	}
	res, err := reg.Learn("nmap", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted || !res.Duplicate {
		t.Errorf("expected accepted duplicate, got %+v", res)
	}
	if reg.Len() != 3 {
		t.Errorf("expected 3 patterns, got %d", reg.Len())
	}
}

func TestLearn_Invalid(t *testing.T) {
	dir := t.TempDir()
	reg, err := Load(Options{RulesPath: writeFile(t, dir, "rules.yaml", testRules)})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		expr string
		want error
	}{
		{"", ErrPatternEmpty},
		{"(oops", ErrInvalidPattern},
	}
	for _, tt := range tests {
		res, err := reg.Learn(tt.expr, "")
		if !errors.Is(err, tt.want) {
			t.Errorf("Learn(%q): expected %v, got %v", tt.expr, tt.want, err)
		}
		if res.Accepted {
			t.Errorf("Learn(%q): expected rejection", tt.expr)
		}
	}
	if reg.Len() != 2 {
		t.Errorf("expected registry unchanged, got %d", reg.Len())
	}
}

func TestLearn_NoStoreStillLive(t *testing.T) {
	reg, err := Load(Options{RulesPath: writeFile(t, t.TempDir(), "rules.yaml", testRules)})
	if err != nil {
		t.Fatal(err)
	}
	res, err := reg.Learn("nmap", "")
	if !errors.Is(err, ErrPersist) {
		t.Errorf("expected ErrPersist, got %v", err)
	}
	if !res.Accepted || res.Persisted {
		t.Errorf("expected live but unpersisted, got %+v", res)
	}
	if reg.Len() != 3 {
		t.Errorf("expected 3 patterns, got %d", reg.Len())
	}
}

func TestLearn_PersistFailureKeepsRule(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", testRules)
	// A corrupt store cannot be appended to.
	learned := writeFile(t, dir, "learned.yaml", "learned_patterns: [")

	reg, err := Load(Options{RulesPath: rules, LearnedPath: learned})
	if err != nil {
		t.Fatal(err)
	}
	res, err := reg.Learn("nmap", "")
	if !errors.Is(err, ErrPersist) {
		t.Errorf("expected ErrPersist, got %v", err)
	}
	if !res.Accepted || res.Persisted {
		t.Errorf("expected live but unpersisted, got %+v", res)
	}
	if !reg.Snapshot().Patterns()[2].Regex.MatchString("nmap -sS host") {
		t.Error("expected learned rule to match")
	}
}

func TestLearn_ConcurrentReaders(t *testing.T) {
	dir := t.TempDir()
	reg, err := Load(Options{
		RulesPath:   writeFile(t, dir, "rules.yaml", testRules),
		LearnedPath: filepath.Join(dir, "learned.yaml"),
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := reg.Snapshot()
				for _, p := range snap.Patterns() {
					p.Regex.MatchString("cat /etc/passwd")
				}
			}
		}()
	}
	for _, expr := range []string{"nmap", "masscan", "hydra", "john"} {
		if _, err := reg.Learn(expr, ""); err != nil {
			t.Error(err)
		}
	}
	wg.Wait()

	if reg.Len() != 6 {
		t.Errorf("expected 6 patterns, got %d", reg.Len())
	}
}

func TestMerge_AddsOnlyNew(t *testing.T) {
	reg, err := Load(Options{RulesPath: writeFile(t, t.TempDir(), "rules.yaml", testRules)})
	if err != nil {
		t.Fatal(err)
	}
	n := reg.Merge([]Record{{Pattern: "/etc/passwd"}, {Pattern: "nmap"}, {Pattern: "nmap"}, {Pattern: "(bad"}})
	if n != 1 {
		t.Errorf("expected 1 merged record, got %d", n)
	}
	if reg.Len() != 3 {
		t.Errorf("expected 3 patterns, got %d", reg.Len())
	}
}
