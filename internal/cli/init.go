package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/patterns"
	"github.com/gzhole/cmdguardian/internal/policy"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default rules and zone policy into the config directory",
	Long: `Create ~/.cmdguardian (or $CMDGUARDIAN_HOME) and write the default rules
file, zone policy and an empty policy pack directory. Existing files are kept
unless --force is given.`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func initCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create %s: %w", cfg.ConfigDir, err)
	}
	if cfg.PacksDir != "" {
		if err := os.MkdirAll(cfg.PacksDir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", cfg.PacksDir, err)
		}
	}

	pol, err := policy.DefaultPolicy().Marshal()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range []struct {
		path string
		data []byte
	}{
		{cfg.RulesPath, patterns.DefaultRules()},
		{cfg.PolicyPath, pol},
	} {
		if f.path == "" {
			continue
		}
		wrote, err := writeDefault(f.path, f.data, initForce)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(out, "  wrote   %s\n", f.path)
		} else {
			fmt.Fprintf(out, "  exists  %s (use --force to overwrite)\n", f.path)
		}
	}
	fmt.Fprintf(out, "\nConfig directory: %s\n", cfg.ConfigDir)
	return nil
}

func writeDefault(path string, data []byte, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
