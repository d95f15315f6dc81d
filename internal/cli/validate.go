package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/guardian"
)

var (
	validateTask     string
	validateProvider string
	validateJSON     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [-- command...]",
	Short: "Decide whether a command may run",
	Long: `Validate a command and record the decision in the audit log.

With arguments, the arguments are joined into one command. Without
arguments, each non-empty line on stdin is validated as its own command.
The exit status is 2 when any command is rejected.

Examples:
  cmdguardian validate -- ls -la
  cmdguardian validate --task "clean build dir" -- rm -rf ./build
  echo 'cat ~/.ssh/id_rsa' | cmdguardian validate --json`,
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVar(&validateTask, "task", "", "Task the agent was working on")
	validateCmd.Flags().StringVar(&validateProvider, "provider", "", "LLM provider that proposed the command")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print verdicts as JSON lines")
	rootCmd.AddCommand(validateCmd)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	g, _, err := newGuardian()
	if err != nil {
		return err
	}
	defer g.Close()

	var commands []string
	if len(args) > 0 {
		commands = []string{strings.Join(args, " ")}
	} else {
		commands, err = readLines(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read commands: %w", err)
		}
	}
	if len(commands) == 0 {
		return fmt.Errorf("no command given")
	}

	out := cmd.OutOrStdout()
	rejected := false
	for _, c := range commands {
		v := g.Validate(c, validateTask, validateProvider)
		if !v.Approved {
			rejected = true
		}
		if err := printVerdict(out, c, v, validateJSON); err != nil {
			return err
		}
	}
	if rejected {
		return NewExitCodeError(ExitRejected)
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

type verdictOutput struct {
	Command string `json:"command"`
	guardian.Verdict
}

func printVerdict(w io.Writer, command string, v guardian.Verdict, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(verdictOutput{Command: command, Verdict: v})
	}
	if v.Approved {
		_, err := fmt.Fprintf(w, "✅ APPROVED  %s\n", command)
		return err
	}
	_, err := fmt.Fprintf(w, "\U0001F6D1 REJECTED  %s\n     %s\n", command, v.Reason)
	return err
}
