package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/clog"
	"github.com/gzhole/cmdguardian/internal/config"
	"github.com/gzhole/cmdguardian/internal/guardian"
)

var log = clog.New("cli")

var (
	configPath  string
	rulesPath   string
	policyPath  string
	learnedPath string
	logPath     string
	debug       bool
)

var rootCmd = &cobra.Command{
	Use:   "cmdguardian",
	Short: "cmdguardian - validate shell commands proposed by AI agents",
	Long: `cmdguardian decides whether a shell command proposed by an AI agent may
run. Commands are normalized to defeat quoting and encoding tricks, checked
against a zone policy of allowed and forbidden binaries, then matched against
a live set of dangerous-command patterns. Every decision is audited and the
audit trail can be mined for new patterns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = clog.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.cmdguardian/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Path to rules YAML file (default: ~/.cmdguardian/rules.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to zone policy YAML file (default: ~/.cmdguardian/policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&learnedPath, "learned", "", "Path to learned patterns file (default: ~/.cmdguardian/learned_patterns.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Also write diagnostic logs to this file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, config.Overrides{
		RulesPath:   rulesPath,
		PolicyPath:  policyPath,
		LearnedPath: learnedPath,
		LogPath:     logPath,
		Debug:       debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := clog.Configure(cfg.LogPath, cfg.Debug); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return cfg, nil
}

func newGuardian(opts ...guardian.Option) (*guardian.Guardian, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	g, err := guardian.New(cfg, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start guardian: %w", err)
	}
	return g, cfg, nil
}
