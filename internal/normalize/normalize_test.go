package normalize

import "testing"

func TestNormalize_IFS(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ls${IFS}-la", "ls -la"},
		{`ls$'\t'-la`, "ls -la"},
		{`ls$'\n'-la`, "ls -la"},
		{`cat$IFS$9/etc/passwd`, "cat /etc/passwd"},
		{`cat$IFS/etc/passwd`, "cat /etc/passwd"},
		{`echo $IFSX`, "echo $IFSX"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_HexDecode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"echo 6964 | xxd -r -p", "id"},
		{"echo 726d202d7266202f | xxd -r -p", "rm -rf /"},
		{"echo '6964' | xxd -rp", "id"},
		{"echo 6964|xxd -p -r", "id"},
		// Not a reverse dump: left alone.
		{"echo 6964 | xxd -p", "echo 6964 | xxd -p"},
		// Odd length: decoding fails, text untouched apart from later steps.
		{"echo 696 | xxd -r -p", "echo 696 | xxd -r -p"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_Base64Decode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"echo cm0gLXJmIC8= | base64 -d", "rm -rf /"},
		{"echo 'cm0gLXJmIC8=' | base64 -d", "rm -rf /"},
		{"echo cm0gLXJmIC8 | base64 --decode", "rm -rf /"},
		{"echo aWQ= | base64 -d | sh", "id | sh"},
		{"echo %%%% | base64 -d", "echo %%%% | base64 -d"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_Subshells(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"$(whoami)", "whoami"},
		{"`id`", "id"},
		{"echo $(cat /etc/shadow)", "echo cat /etc/shadow"},
		{"$(rm -rf /)", "rm -rf /"},
		// One level per pass.
		{"$(echo $(id))", "$(echo id)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_QuotesAndEscapes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`c''a""t /etc/passwd`, "cat /etc/passwd"},
		{`"r"'m' -rf /`, "rm -rf /"},
		{`c\at /etc/sh\adow`, "cat /etc/shadow"},
		{`w\h\o\a\m\i`, "whoami"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_Whitespace(t *testing.T) {
	if got := Normalize("  ls \t\t -la \n "); got != "ls -la" {
		t.Errorf("expected 'ls -la', got %q", got)
	}
	if got := Normalize(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestNormalize_UnicodeFold(t *testing.T) {
	if got := Normalize("r\u200bm -rf /"); got != "rm -rf /" {
		t.Errorf("expected zero-width stripped, got %q", got)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	input := `echo 6964 | xxd -r -p; $(c''at /etc/passwd)`
	first := Normalize(input)
	for i := 0; i < 10; i++ {
		if got := Normalize(input); got != first {
			t.Fatalf("run %d: expected %q, got %q", i, first, got)
		}
	}
}

func TestExecutable(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ls -la", "ls"},
		{"/usr/bin/cat file", "/usr/bin/cat"},
		{"", ""},
		{"whoami", "whoami"},
	}
	for _, tt := range tests {
		if got := Executable(tt.input); got != tt.want {
			t.Errorf("Executable(%q): expected %q, got %q", tt.input, tt.want, got)
		}
	}
}
