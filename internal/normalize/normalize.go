// Package normalize rewrites raw command text into a canonical form that
// exposes obfuscated intent. Nothing is executed: each step is a textual
// rewrite, and malformed input is left as it is rather than rejected.
package normalize

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gzhole/cmdguardian/internal/unicode"
)

var (
	// ${IFS}, $IFS$9 and bare $IFS, plus ANSI-C quoted tab/newline/space.
	ifsRegex = regexp.MustCompile(`\$\{IFS\}|\$IFS\$[0-9]|\$IFS\b|\$'\\(?:t|n|x09|x0[aA]|x20)'`)

	hexPipeRegex    = regexp.MustCompile(`echo\s+['"]?([0-9A-Fa-f]+)['"]?\s*\|\s*xxd((?:\s+-{1,2}[A-Za-z]+)+)`)
	base64PipeRegex = regexp.MustCompile(`echo\s+['"]?([A-Za-z0-9+/]+={0,2})['"]?\s*\|\s*base64\s+(?:-d|-D|--decode)\b`)

	dollarSubshellRegex = regexp.MustCompile(`\$\(([^()]*)\)`)
	backtickRegex       = regexp.MustCompile("`([^`]*)`")

	escapeRegex     = regexp.MustCompile(`(?s)\\(.)`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize returns the canonical form of a raw command. The steps run in a
// fixed order and each assumes the previous ones ran:
//
//  0. Unicode fold (NFKC, invisible runes, homoglyphs)
//  1. IFS substitutions become a space
//  2. echo <hex> | xxd -r -p is decoded in place
//  3. echo <base64> | base64 -d is decoded in place
//  4. $(...) and `...` are unwrapped, one level per occurrence
//  5. single and double quotes are removed
//  6. backslash escapes collapse to the escaped character
//  7. whitespace runs collapse to one space and the ends are trimmed
//
// Normalize is a single pass. Running it twice may rewrite further.
func Normalize(raw string) string {
	s := unicode.Fold(raw).Text
	s = ifsRegex.ReplaceAllString(s, " ")
	s = decodeHexPipes(s)
	s = decodeBase64Pipes(s)
	s = unwrapSubshells(s)
	s = stripQuotes(s)
	s = escapeRegex.ReplaceAllString(s, "$1")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Executable returns the first whitespace-delimited token of a normalized
// command, or "" for an empty command.
func Executable(normalized string) string {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func decodeHexPipes(s string) string {
	return hexPipeRegex.ReplaceAllStringFunc(s, func(match string) string {
		sub := hexPipeRegex.FindStringSubmatch(match)
		if !isReverseHexDump(sub[2]) {
			return match
		}
		decoded, ok := DecodeHex(sub[1])
		if !ok {
			return match
		}
		return decoded
	})
}

// isReverseHexDump reports whether the xxd flags ask for a reverse
// plain-hex dump (-r and -p in any grouping, e.g. "-r -p", "-rp", "-p -r").
func isReverseHexDump(flags string) bool {
	var reverse, plain bool
	for _, f := range strings.Fields(flags) {
		f = strings.TrimLeft(f, "-")
		switch f {
		case "revert":
			reverse = true
			continue
		case "plain", "ps", "postscript":
			plain = true
			continue
		}
		if strings.ContainsRune(f, 'r') {
			reverse = true
		}
		if strings.ContainsRune(f, 'p') {
			plain = true
		}
	}
	return reverse && plain
}

func decodeBase64Pipes(s string) string {
	return base64PipeRegex.ReplaceAllStringFunc(s, func(match string) string {
		sub := base64PipeRegex.FindStringSubmatch(match)
		decoded, ok := DecodeBase64(sub[1])
		if !ok {
			return match
		}
		return decoded
	})
}

// DecodeHex decodes a plain hex payload into text. It reports false for odd
// lengths, non-hex input or a result that is not valid UTF-8.
func DecodeHex(payload string) (string, bool) {
	b, err := hex.DecodeString(payload)
	if err != nil || !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// DecodeBase64 decodes a padded or unpadded standard-alphabet payload into
// text. It reports false when decoding fails or the result is not UTF-8.
func DecodeBase64(payload string) (string, bool) {
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil || !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func unwrapSubshells(s string) string {
	s = dollarSubshellRegex.ReplaceAllString(s, "$1")
	return backtickRegex.ReplaceAllString(s, "$1")
}

func stripQuotes(s string) string {
	return strings.NewReplacer(`'`, "", `"`, "").Replace(s)
}
