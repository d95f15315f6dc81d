package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gzhole/cmdguardian/internal/clog"
	"github.com/gzhole/cmdguardian/internal/config"
)

// runCLI executes the root command against a fresh config directory state.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	clog.Discard()

	configPath, rulesPath, policyPath, learnedPath, logPath, debug = "", "", "", "", "", false
	validateTask, validateProvider, validateJSON = "", "", false
	healthJSON, scanBuiltin, initForce = false, false, false
	logFilterStatus, logLast, logSummary = "", 0, false
	learnDescription = ""
	mineWindow, mineMinSamples, mineTopN, mineThreshold, mineReview = 0, 0, 0, -1, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	if _, err := runCLI(t, "", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	return home
}

func exitCode(err error) int {
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestInit_WritesDefaults(t *testing.T) {
	home := setupHome(t)

	for _, name := range []string{config.DefaultRulesFile, config.DefaultPolicyFile} {
		info, err := os.Stat(filepath.Join(home, name))
		if err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected %s mode 0600, got %v", name, info.Mode().Perm())
		}
	}

	out, err := runCLI(t, "", "init")
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(out, "exists") {
		t.Errorf("expected existing files to be kept, got %q", out)
	}
}

func TestValidate_ExitCodes(t *testing.T) {
	setupHome(t)

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"safe", []string{"validate", "--", "ls", "-la"}, 0, "APPROVED"},
		{"destructive", []string{"validate", "--", "rm", "-rf", "/"}, ExitRejected, "Filesystem Destruction"},
		{"forbidden binary", []string{"validate", "--", "nc", "-lvp", "4444"}, ExitRejected, "forbidden binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "", tt.args...)
			if got := exitCode(err); got != tt.code {
				t.Fatalf("expected exit code %d, got %d (%v)", tt.code, got, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected output containing %q, got %q", tt.want, out)
			}
		})
	}
}

func TestValidate_StdinJSON(t *testing.T) {
	setupHome(t)

	out, err := runCLI(t, "ls\n\ncat ~/.ssh/id_rsa\n", "validate", "--json")
	if exitCode(err) != ExitRejected {
		t.Fatalf("expected exit code %d, got %v", ExitRejected, err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 verdict lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], `"approved":true`) {
		t.Errorf("expected first command approved, got %s", lines[0])
	}
	if !strings.Contains(lines[1], `"approved":false`) || !strings.Contains(lines[1], "Sensitive Files") {
		t.Errorf("expected second command rejected as sensitive, got %s", lines[1])
	}
}

func TestValidate_AuditThenLog(t *testing.T) {
	home := setupHome(t)

	_, _ = runCLI(t, "", "validate", "--task", "cleanup", "--", "rm", "-rf", "/")
	_, _ = runCLI(t, "", "validate", "--", "pwd")

	if _, err := os.Stat(filepath.Join(home, config.DefaultAuditFile)); err != nil {
		t.Fatalf("expected audit log: %v", err)
	}

	out, err := runCLI(t, "", "log", "--status", "rejected")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(out, "rm -rf /") || strings.Contains(out, "pwd") {
		t.Errorf("expected only the rejected command, got %q", out)
	}
	if !strings.Contains(out, "Task: cleanup") {
		t.Errorf("expected task in output, got %q", out)
	}

	out, err = runCLI(t, "", "log", "--summary")
	if err != nil {
		t.Fatalf("log --summary: %v", err)
	}
	for _, want := range []string{"Total events:    2", "Executed:        1", "Rejected:        1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected summary containing %q, got %q", want, out)
		}
	}
}

func TestLearn_ThenValidate(t *testing.T) {
	setupHome(t)

	if _, err := runCLI(t, "", "validate", "--", "nmap", "-sS", "10.0.0.1"); err != nil {
		t.Fatalf("expected nmap to pass before learning, got %v", err)
	}

	out, err := runCLI(t, "", "learn", `nmap\s+-sS`, "--description", "stealth scan")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if !strings.Contains(out, "Learned pattern") {
		t.Errorf("expected confirmation, got %q", out)
	}

	out, err = runCLI(t, "", "validate", "--", "nmap", "-sS", "10.0.0.1")
	if exitCode(err) != ExitRejected {
		t.Fatalf("expected learned pattern to reject, got %v", err)
	}
	if !strings.Contains(out, "Learned") {
		t.Errorf("expected learned category in reason, got %q", out)
	}

	out, err = runCLI(t, "", "learn", `nmap\s+-sS`)
	if err != nil {
		t.Fatalf("duplicate learn: %v", err)
	}
	if !strings.Contains(out, "already loaded") {
		t.Errorf("expected duplicate notice, got %q", out)
	}
}

func TestLearn_InvalidPattern(t *testing.T) {
	setupHome(t)

	if _, err := runCLI(t, "", "learn", "(unclosed"); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestScan_Builtin(t *testing.T) {
	t.Setenv(config.EnvHome, t.TempDir())

	out, err := runCLI(t, "", "scan")
	if err != nil {
		t.Fatalf("expected all checks to pass, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "built-in defaults") {
		t.Errorf("expected fallback to built-in defaults, got %q", out)
	}
	if !strings.Contains(out, "All checks passed") {
		t.Errorf("expected success line, got %q", out)
	}
}

func TestHealth_JSON(t *testing.T) {
	setupHome(t)

	out, err := runCLI(t, "", "health", "--json")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, `"status": "healthy"`) {
		t.Errorf("expected healthy status, got %q", out)
	}
}

func TestHealth_MissingRules(t *testing.T) {
	t.Setenv(config.EnvHome, t.TempDir())

	if _, err := runCLI(t, "", "health"); err == nil {
		t.Fatal("expected error when rules file is missing")
	}
}

func TestMine_InsufficientData(t *testing.T) {
	setupHome(t)

	out, err := runCLI(t, "", "mine")
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if !strings.Contains(out, "Not enough rejected commands") {
		t.Errorf("expected insufficient data notice, got %q", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "cmdguardian "+Version) {
		t.Errorf("expected version line, got %q", out)
	}
}

func TestHealth_ListsPacks(t *testing.T) {
	home := setupHome(t)
	pack := "name: ops\nversion: \"1.2\"\nzones:\n  red:\n    binaries: [terraform]\n"
	if err := os.WriteFile(filepath.Join(home, config.DefaultPacksDir, "ops.yaml"), []byte(pack), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, config.DefaultPacksDir, "_off.yaml"), []byte("name: off\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "", "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, "ops") || !strings.Contains(out, "enabled") {
		t.Errorf("expected enabled ops pack, got %q", out)
	}
	if !strings.Contains(out, "disabled") {
		t.Errorf("expected disabled pack, got %q", out)
	}

	out, err = runCLI(t, "", "validate", "--", "terraform", "destroy")
	if exitCode(err) != ExitRejected {
		t.Fatalf("expected pack red zone to reject, got %v\n%s", err, out)
	}
}
