// Package redact masks credentials in text that is about to be persisted.
// Matching always runs on the unmasked command; only audit output is masked.
package redact

import "regexp"

// Placeholder replaces the secret part of every match.
const Placeholder = "***MASKED***"

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Rules that keep a key-name prefix capture it as group 1 and re-emit it.
var rules = []rule{
	// Key/value assignments
	{regexp.MustCompile(`(?i)(api[_-]?key["\s:=]+)([A-Za-z0-9_-]{20,})`), "${1}" + Placeholder},
	{regexp.MustCompile(`(?i)((?:secret[_-]?key|access[_-]?token|auth[_-]?token|github_token|gh_token|github_pat|token)["\s:=]+)([A-Za-z0-9_-]{20,})`), "${1}" + Placeholder},
	{regexp.MustCompile(`(?i)(password["\s:=]+|(?:passwd|pwd)\s*[=:]\s*)([^\s"']+)`), "${1}" + Placeholder},
	{regexp.MustCompile(`(?i)((?:aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?)([A-Za-z0-9/+=]{16,})`), "${1}" + Placeholder},

	// Provider key formats
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "sk-" + Placeholder},
	{regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`), "gsk_" + Placeholder},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), Placeholder},
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`), Placeholder},
	{regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`), Placeholder},
	{regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24}`), Placeholder},

	// Bearer tokens
	{regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9_.-]{20,})`), "${1}" + Placeholder},

	// Basic auth in URLs
	{regexp.MustCompile(`(https?://[^:/\s]+:)([^@\s]+)(@)`), "${1}" + Placeholder + "${3}"},

	// Private keys
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`), Placeholder},
}

// Mask returns text with every recognised secret replaced by Placeholder.
// Text without secrets is returned unchanged.
func Mask(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}
