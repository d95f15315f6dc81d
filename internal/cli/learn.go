package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/guardian"
	"github.com/gzhole/cmdguardian/internal/patterns"
)

var learnDescription string

var learnCmd = &cobra.Command{
	Use:   "learn <pattern>",
	Short: "Add a dangerous-command pattern to the learned store",
	Long: `Compile a regular expression and append it to the learned patterns file.
Patterns are matched case-insensitively. A pattern that is already loaded
is accepted without being stored twice.

  cmdguardian learn 'nmap\s+-sS' --description "stealth port scan"`,
	Args: cobra.ExactArgs(1),
	RunE: learnCommand,
}

func init() {
	learnCmd.Flags().StringVar(&learnDescription, "description", "", "Why the pattern is dangerous")
	rootCmd.AddCommand(learnCmd)
}

func learnCommand(cmd *cobra.Command, args []string) error {
	g, _, err := newGuardian(guardian.WithoutAudit())
	if err != nil {
		return err
	}
	defer g.Close()

	res, err := g.Learn(args[0], learnDescription)
	switch {
	case errors.Is(err, patterns.ErrPersist):
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		return NewExitCodeError(1)
	case err != nil:
		return err
	}

	out := cmd.OutOrStdout()
	if res.Duplicate {
		fmt.Fprintf(out, "Pattern already loaded: %s\n", args[0])
		return nil
	}
	fmt.Fprintf(out, "Learned pattern: %s\n", args[0])
	fmt.Fprintf(out, "  Stored in: %s\n", g.Registry().Store().Path())
	fmt.Fprintf(out, "  Patterns loaded: %d\n", g.Registry().Len())
	return nil
}
