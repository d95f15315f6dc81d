// Package config resolves runtime settings from built-in defaults, an
// optional YAML file, CMDGUARDIAN_* environment variables and command-line
// overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "CMDGUARDIAN"
	// EnvHome relocates the whole config directory.
	EnvHome = "CMDGUARDIAN_HOME"

	DefaultConfigDir       = ".cmdguardian"
	DefaultConfigFile      = "config.yaml"
	DefaultRulesFile       = "rules.yaml"
	DefaultPolicyFile      = "policy.yaml"
	DefaultPacksDir        = "policy.d"
	DefaultLearnedFile     = "learned_patterns.yaml"
	DefaultAuditFile       = "audit.jsonl"
	DefaultSuggestionsFile = "suggestions.yaml"

	DefaultMaxCommandLength = 1024
	DefaultMaxPatternLength = 512
	DefaultPatternTimeout   = time.Second
	DefaultAuditQueueSize   = 256
)

type Config struct {
	ConfigDir string `yaml:"-" ignored:"true"`

	RulesPath       string `yaml:"rules_path" envconfig:"RULES" validate:"required"`
	PolicyPath      string `yaml:"policy_path" envconfig:"POLICY"`
	PacksDir        string `yaml:"packs_dir" envconfig:"PACKS_DIR"`
	LearnedPath     string `yaml:"learned_path" envconfig:"LEARNED"`
	AuditPath       string `yaml:"audit_path" envconfig:"AUDIT_LOG"`
	SuggestionsPath string `yaml:"suggestions_path" envconfig:"SUGGESTIONS"`
	LogPath         string `yaml:"log_path" envconfig:"LOG_FILE"`
	Debug           bool   `yaml:"debug" envconfig:"DEBUG"`

	MaxCommandLength int           `yaml:"max_command_length" envconfig:"MAX_COMMAND_LENGTH" validate:"min=1,max=65536"`
	MaxPatternLength int           `yaml:"max_pattern_length" envconfig:"MAX_PATTERN_LENGTH" validate:"min=1,max=4096"`
	PatternTimeout   time.Duration `yaml:"pattern_timeout" envconfig:"PATTERN_TIMEOUT" validate:"gt=0"`
	Workers          int           `yaml:"workers" envconfig:"WORKERS" validate:"min=0,max=1024"`
	AuditQueueSize   int           `yaml:"audit_queue_size" envconfig:"AUDIT_QUEUE_SIZE" validate:"min=1"`
	WatchLearned     bool          `yaml:"watch_learned" envconfig:"WATCH_LEARNED"`

	Learner LearnerConfig `yaml:"learner"`
}

// LearnerConfig tunes offline pattern mining.
type LearnerConfig struct {
	Window     int     `yaml:"window" envconfig:"WINDOW" validate:"min=1"`
	MinSamples int     `yaml:"min_samples" envconfig:"MIN_SAMPLES" validate:"min=1"`
	TopN       int     `yaml:"top_n" envconfig:"TOP_N" validate:"min=1"`
	Threshold  float64 `yaml:"threshold" envconfig:"THRESHOLD" validate:"min=0,max=100"`
}

// Overrides carries command-line flags. Empty values leave the setting
// alone.
type Overrides struct {
	RulesPath   string
	PolicyPath  string
	LearnedPath string
	AuditPath   string
	LogPath     string
	Debug       bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Dir returns the config directory: $CMDGUARDIAN_HOME, else
// ~/.cmdguardian.
func Dir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return expandHome(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, DefaultConfigDir), nil
}

// Default returns the built-in settings rooted at dir.
func Default(dir string) *Config {
	return &Config{
		ConfigDir:        dir,
		RulesPath:        filepath.Join(dir, DefaultRulesFile),
		PolicyPath:       filepath.Join(dir, DefaultPolicyFile),
		PacksDir:         filepath.Join(dir, DefaultPacksDir),
		LearnedPath:      filepath.Join(dir, DefaultLearnedFile),
		AuditPath:        filepath.Join(dir, DefaultAuditFile),
		SuggestionsPath:  filepath.Join(dir, DefaultSuggestionsFile),
		MaxCommandLength: DefaultMaxCommandLength,
		MaxPatternLength: DefaultMaxPatternLength,
		PatternTimeout:   DefaultPatternTimeout,
		AuditQueueSize:   DefaultAuditQueueSize,
		Learner: LearnerConfig{
			Window:     100,
			MinSamples: 5,
			TopN:       10,
			Threshold:  30,
		},
	}
}

// Load resolves the configuration. When path is empty the file
// <dir>/config.yaml is read if present; an explicit path must exist.
func Load(path string, ov Overrides) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg := Default(dir)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, DefaultConfigFile)
	}
	if err := cfg.readFile(path, explicit); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg.apply(ov)

	for _, p := range []*string{
		&cfg.RulesPath, &cfg.PolicyPath, &cfg.PacksDir, &cfg.LearnedPath,
		&cfg.AuditPath, &cfg.SuggestionsPath, &cfg.LogPath,
	} {
		if *p, err = expandHome(*p); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) apply(ov Overrides) {
	if ov.RulesPath != "" {
		c.RulesPath = ov.RulesPath
	}
	if ov.PolicyPath != "" {
		c.PolicyPath = ov.PolicyPath
	}
	if ov.LearnedPath != "" {
		c.LearnedPath = ov.LearnedPath
	}
	if ov.AuditPath != "" {
		c.AuditPath = ov.AuditPath
	}
	if ov.LogPath != "" {
		c.LogPath = ov.LogPath
	}
	if ov.Debug {
		c.Debug = true
	}
}

// Validate checks ranges and required settings.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", field(fe), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", field(fe), fe.Tag()))
		}
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// EnsureDir creates the config directory with owner-only permissions.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.ConfigDir, 0700)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func field(fe validator.FieldError) string {
	return strings.TrimPrefix(fe.Namespace(), "Config.")
}
