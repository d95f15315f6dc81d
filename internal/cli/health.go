package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdguardian/internal/guardian"
	"github.com/gzhole/cmdguardian/internal/policy"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report whether the guardian can answer requests",
	RunE:  healthCommand,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Print health as JSON")
	rootCmd.AddCommand(healthCmd)
}

func healthCommand(cmd *cobra.Command, args []string) error {
	g, cfg, err := newGuardian(guardian.WithoutAudit())
	if err != nil {
		return err
	}
	defer g.Close()

	h := g.Health()
	out := cmd.OutOrStdout()
	if healthJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(h)
	}

	pol := g.Policy()
	fmt.Fprintf(out, "Status:          %s\n", h.Status)
	fmt.Fprintf(out, "Patterns loaded: %d\n", h.PatternsLoaded)
	fmt.Fprintf(out, "Mode:            %s\n", h.Mode)
	fmt.Fprintf(out, "Zones:           %d green, %d yellow, %d red\n",
		len(pol.Zones.Green.Binaries), len(pol.Zones.Yellow.Binaries), len(pol.Zones.Red.Binaries))
	fmt.Fprintf(out, "Rules:           %s\n", cfg.RulesPath)
	fmt.Fprintf(out, "Learned:         %s\n", cfg.LearnedPath)
	fmt.Fprintf(out, "Audit log:       %s\n", cfg.AuditPath)
	printPacks(out, cfg.PacksDir)
	if !h.Ready {
		return NewExitCodeError(1)
	}
	return nil
}

func printPacks(out io.Writer, dir string) {
	if dir == "" {
		return
	}
	_, infos, err := policy.LoadPacks(dir, policy.DefaultPolicy())
	if err != nil || len(infos) == 0 {
		return
	}
	fmt.Fprintf(out, "Policy packs (%s):\n", dir)
	for _, info := range infos {
		state := "enabled"
		switch {
		case info.Err != nil:
			state = "error: " + info.Err.Error()
		case !info.Enabled:
			state = "disabled"
		}
		fmt.Fprintf(out, "  %-20s %-8s %3d binaries  %s\n", info.Name, info.Version, info.Binaries, state)
	}
}
