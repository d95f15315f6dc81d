package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/approval"
	"github.com/gzhole/cmdguardian/internal/learner"
	"github.com/gzhole/cmdguardian/internal/patterns"
)

var (
	mineWindow     int
	mineMinSamples int
	mineTopN       int
	mineThreshold  float64
	mineReview     bool
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Suggest new patterns from rejected commands in the audit log",
	Long: `Analyze the most recent rejected commands in the audit log, rank the
tokens they share and append the ones above the confidence threshold to the
learned patterns file. Every candidate is written to the suggestions file.

Examples:
  cmdguardian mine
  cmdguardian mine --window 200 --threshold 50
  cmdguardian mine --review              # confirm each pattern interactively`,
	RunE: mineCommand,
}

func init() {
	mineCmd.Flags().IntVar(&mineWindow, "window", 0, "Number of recent rejected commands to analyze")
	mineCmd.Flags().IntVar(&mineMinSamples, "min-samples", 0, "Minimum rejected commands required")
	mineCmd.Flags().IntVar(&mineTopN, "top", 0, "Number of candidate tokens to report")
	mineCmd.Flags().Float64Var(&mineThreshold, "threshold", -1, "Confidence percentage needed for approval")
	mineCmd.Flags().BoolVar(&mineReview, "review", false, "Ask before storing each approved pattern")
	rootCmd.AddCommand(mineCmd)
}

func mineCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LearnedPath == "" {
		return fmt.Errorf("no learned patterns file configured")
	}

	opts := learner.Options{
		Window:     cfg.Learner.Window,
		MinSamples: cfg.Learner.MinSamples,
		TopN:       cfg.Learner.TopN,
		Threshold:  cfg.Learner.Threshold,
	}
	if mineWindow > 0 {
		opts.Window = mineWindow
	}
	if mineMinSamples > 0 {
		opts.MinSamples = mineMinSamples
	}
	if mineTopN > 0 {
		opts.TopN = mineTopN
	}
	if mineThreshold >= 0 {
		opts.Threshold = mineThreshold
	}

	var review learner.Reviewer
	if mineReview {
		review = func(c learner.Candidate, samples int) bool {
			return approval.Ask(approval.Prompt{
				Token:       c.Token,
				Pattern:     c.Pattern,
				Occurrences: c.Occurrences,
				Samples:     samples,
				Confidence:  c.Confidence,
			}).Approved
		}
	}

	store := patterns.NewStore(cfg.LearnedPath)
	report, err := learner.Run(cfg.AuditPath, store, cfg.SuggestionsPath, opts, review)
	if errors.Is(err, learner.ErrInsufficientData) {
		fmt.Fprintf(cmd.OutOrStdout(), "Not enough rejected commands to analyze: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzed %d rejected commands\n\n", report.Samples)
	for _, c := range report.Suggestions {
		fmt.Fprintf(out, "  %-16s %4d  %6.2f%%  %s\n", c.Token, c.Occurrences, c.Confidence, c.Status)
	}
	fmt.Fprintf(out, "\n%d new pattern(s) added to %s\n", report.Added, store.Path())
	if cfg.SuggestionsPath != "" {
		fmt.Fprintf(out, "Suggestions written to %s\n", cfg.SuggestionsPath)
	}
	return nil
}
