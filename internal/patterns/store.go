package patterns

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is one learned rule as persisted in the learned store.
type Record struct {
	Pattern     string    `yaml:"pattern"`
	Description string    `yaml:"description,omitempty"`
	AddedAt     time.Time `yaml:"added_at,omitempty"`
	Token       string    `yaml:"token,omitempty"`
	Confidence  float64   `yaml:"confidence,omitempty"`
}

// recordList accepts both the current list layout and the older
//
//	learned_patterns:
//	  enabled: true
//	  patterns: [...]
//
// layout. A legacy file with enabled: false yields no records.
type recordList []Record

func (l *recordList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var recs []Record
		if err := node.Decode(&recs); err != nil {
			return err
		}
		*l = recs
		return nil
	case yaml.MappingNode:
		var legacy struct {
			Enabled  *bool    `yaml:"enabled"`
			Patterns []Record `yaml:"patterns"`
		}
		if err := node.Decode(&legacy); err != nil {
			return err
		}
		if legacy.Enabled != nil && !*legacy.Enabled {
			*l = nil
			return nil
		}
		*l = legacy.Patterns
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
	}
	return fmt.Errorf("line %d: learned_patterns must be a list", node.Line)
}

type storeFile struct {
	LearnedPatterns recordList `yaml:"learned_patterns"`
}

// Store is the YAML file that learned rules are appended to. A Store is
// safe for concurrent use within one process.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored records. A missing file is not an error and
// yields no records.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	out := make([]Record, 0, len(f.LearnedPatterns))
	for _, r := range f.LearnedPatterns {
		if r.Pattern == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Append adds records whose pattern text is not already stored and
// rewrites the file. It returns how many records were added. An unreadable
// existing file is left untouched and reported as an error.
func (s *Store) Append(recs ...Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.Pattern] = true
	}

	added := 0
	for _, r := range recs {
		if r.Pattern == "" || seen[r.Pattern] {
			continue
		}
		if r.AddedAt.IsZero() {
			r.AddedAt = time.Now().UTC()
		}
		seen[r.Pattern] = true
		existing = append(existing, r)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := WriteYAML(s.path, storeFile{LearnedPatterns: existing}); err != nil {
		return 0, err
	}
	return added, nil
}

// WriteYAML marshals v and replaces path atomically via a temp file in the
// same directory.
func WriteYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
