// Package approval asks a human to accept or decline mined pattern
// candidates before they reach the learned store.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes one candidate rule.
type Prompt struct {
	Token       string
	Pattern     string
	Occurrences int
	Samples     int
	Confidence  float64
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask prompts on stderr and reads the answer from stdin. Without a
// terminal the candidate is declined.
func Ask(p Prompt) Result {
	if !IsInteractive() {
		return Result{
			Approved:   false,
			UserAction: "auto_decline_non_interactive",
		}
	}
	return NewPrompter(os.Stdin, os.Stderr).Ask(p)
}

// Prompter reads answers from in and writes prompts to out.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (pr *Prompter) Ask(p Prompt) Result {
	fmt.Fprintln(pr.out, "")
	fmt.Fprintln(pr.out, "── Pattern candidate ─────────────────────────────────────────")
	fmt.Fprintf(pr.out, "Token:       %s\n", p.Token)
	fmt.Fprintf(pr.out, "Pattern:     %s\n", p.Pattern)
	fmt.Fprintf(pr.out, "Seen:        %d times in %d rejected commands\n", p.Occurrences, p.Samples)
	fmt.Fprintf(pr.out, "Confidence:  %.2f%%\n", p.Confidence)
	fmt.Fprintln(pr.out, "")
	fmt.Fprintln(pr.out, "  [a] Approve - add to learned patterns")
	fmt.Fprintln(pr.out, "  [d] Decline - keep for review only")
	fmt.Fprintln(pr.out, "")

	for {
		fmt.Fprint(pr.out, "Your choice [a/d]: ")
		input, err := pr.in.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		switch strings.TrimSpace(strings.ToLower(input)) {
		case "a", "approve", "yes", "y":
			return Result{
				Approved:   true,
				UserAction: "approve",
			}
		case "d", "decline", "deny", "no", "n":
			return Result{
				Approved:   false,
				UserAction: "decline",
			}
		default:
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
			fmt.Fprintln(pr.out, "Invalid input. Please enter 'a' to approve or 'd' to decline.")
		}
	}
}
