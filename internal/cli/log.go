package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/logger"
)

var (
	logFilterStatus string
	logLast         int
	logSummary      bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the cmdguardian audit log with filtering and summary options.

Examples:
  cmdguardian log                        # Show all entries
  cmdguardian log --last 20              # Show last 20 entries
  cmdguardian log --status rejected      # Show only rejected commands
  cmdguardian log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterStatus, "status", "", "Filter by status (executed, rejected)")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := logger.ReadEvents(cfg.AuditPath)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	if logSummary {
		printSummary(out, events)
		return nil
	}

	filtered := filterEvents(events, logFilterStatus)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}
	printEvents(out, filtered)
	return nil
}

func filterEvents(events []logger.AuditEvent, status string) []logger.AuditEvent {
	if status == "" {
		return events
	}
	var filtered []logger.AuditEvent
	for _, e := range events {
		if strings.EqualFold(e.Status, status) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func printEvents(out io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		fmt.Fprintf(out, "%s %s %s\n", statusIcon(e.Status), formatTimestamp(e.Timestamp), e.Command)
		if e.Task != "" {
			fmt.Fprintf(out, "     Task: %s\n", e.Task)
		}
		if e.Reason != "" {
			fmt.Fprintf(out, "     Reason: %s\n", e.Reason)
		}
		if e.Provider != "" {
			fmt.Fprintf(out, "     Provider: %s\n", e.Provider)
		}
		fmt.Fprintln(out)
	}
}

func printSummary(out io.Writer, events []logger.AuditEvent) {
	counts := map[string]int{}
	reasons := map[string]int{}
	for _, e := range events {
		counts[e.Status]++
		if e.Status == logger.StatusRejected {
			reasons[e.Reason]++
		}
	}

	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintln(out, "  cmdguardian Audit Summary")
	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintf(out, "  Total events:    %d\n", len(events))
	fmt.Fprintf(out, "  Executed:        %d\n", counts[logger.StatusExecuted])
	fmt.Fprintf(out, "  Rejected:        %d\n", counts[logger.StatusRejected])
	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintf(out, "  First event:     %s\n", formatTimestamp(events[0].Timestamp))
	fmt.Fprintf(out, "  Last event:      %s\n", formatTimestamp(events[len(events)-1].Timestamp))

	if len(reasons) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Rejections by reason:")
		keys := make([]string, 0, len(reasons))
		for reason := range reasons {
			keys = append(keys, reason)
		}
		sort.Slice(keys, func(i, j int) bool {
			if reasons[keys[i]] != reasons[keys[j]] {
				return reasons[keys[i]] > reasons[keys[j]]
			}
			return keys[i] < keys[j]
		})
		for _, reason := range keys {
			fmt.Fprintf(out, "    %4d  %s\n", reasons[reason], reason)
		}
	}

	recent := logger.Rejected(events, 10)
	if len(recent) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Recently rejected:")
		for _, e := range recent {
			fmt.Fprintf(out, "    %s %s\n", formatTimestamp(e.Timestamp), e.Command)
		}
	}
	fmt.Fprintln(out)
}

func statusIcon(status string) string {
	switch status {
	case logger.StatusRejected:
		return "\xf0\x9f\x9b\x91" // stop sign
	case logger.StatusExecuted:
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
