// Package unicode folds command text to a canonical Unicode form before
// shell-level normalization. Invisible and direction-changing runes are
// removed and Latin lookalikes from other scripts are mapped back to ASCII,
// so "rm\u200B -rf" and "саt" reach the rule set as "rm -rf" and "cat".
package unicode

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Strip records one rune removed or replaced by Fold.
type Strip struct {
	Category  string // "zero-width", "bidi-override", "tag-char", "control-char", "homoglyph"
	Codepoint string // e.g. "U+200B"
	Position  int    // byte offset in the NFKC form
}

// Result is the output of Fold.
type Result struct {
	Text   string
	Strips []Strip
}

// Clean reports whether Fold changed nothing beyond NFKC.
func (r Result) Clean() bool { return len(r.Strips) == 0 }

// Fold returns input in NFKC form with invisible runes dropped and
// homoglyphs mapped to Latin. Invalid UTF-8 becomes U+FFFD first, since
// stray bytes corrupt NFKC composition of the runes that follow them.
func Fold(input string) Result {
	text := strings.ToValidUTF8(input, "\uFFFD")
	text = norm.NFKC.String(text)

	var (
		sb     strings.Builder
		strips []Strip
	)
	sb.Grow(len(text))

	for pos, r := range text {
		if cat := invisibleCategory(r); cat != "" {
			strips = append(strips, Strip{Category: cat, Codepoint: codepoint(r), Position: pos})
			continue
		}
		if latin, ok := homoglyph(r); ok {
			strips = append(strips, Strip{Category: "homoglyph", Codepoint: codepoint(r), Position: pos})
			sb.WriteRune(latin)
			continue
		}
		sb.WriteRune(r)
	}

	if len(strips) == 0 {
		return Result{Text: text}
	}
	// Replacing a base rune can create a new composition pair with a
	// following combining mark.
	return Result{Text: norm.NFKC.String(sb.String()), Strips: strips}
}

func codepoint(r rune) string { return fmt.Sprintf("U+%04X", r) }

func invisibleCategory(r rune) string {
	switch {
	case isZeroWidth(r):
		return "zero-width"
	case isBidiOverride(r):
		return "bidi-override"
	case isTagCharacter(r):
		return "tag-char"
	case isUnsafeControl(r):
		return "control-char"
	}
	return ""
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\uFEFF', // ZERO WIDTH NO-BREAK SPACE (BOM)
		'\u2060', // WORD JOINER
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\u00AD', // SOFT HYPHEN
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F': // RIGHT-TO-LEFT MARK
		return true
	}
	return false
}

func isBidiOverride(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

func isTagCharacter(r rune) bool {
	return r >= 0xE0001 && r <= 0xE007F
}

// isUnsafeControl reports C0/C1 controls other than tab, newline and
// carriage return, which later normalization treats as whitespace.
func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func homoglyph(r rune) (rune, bool) {
	if r < 0x80 {
		return 0, false
	}
	if unicode.Is(unicode.Cyrillic, r) {
		l, ok := cyrillicHomoglyphs[r]
		return l, ok
	}
	if unicode.Is(unicode.Greek, r) {
		l, ok := greekHomoglyphs[r]
		return l, ok
	}
	return 0, false
}

var cyrillicHomoglyphs = map[rune]rune{
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'ј': 'j', 'К': 'K', 'М': 'M', 'о': 'o',
	'О': 'O', 'р': 'p', 'Р': 'P', 'ѕ': 's', 'Ѕ': 'S', 'Т': 'T', 'х': 'x',
	'Х': 'X', 'у': 'y', 'У': 'Y',
}

var greekHomoglyphs = map[rune]rune{
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y',
	'Ζ': 'Z',
}
