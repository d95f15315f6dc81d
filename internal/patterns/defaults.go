package patterns

import (
	"embed"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// DefaultRules returns the bundled rule pack. It is written out by
// `cmdguardian init` and used by self-tests; Load never falls back to it.
func DefaultRules() []byte {
	data, err := defaultsFS.ReadFile("defaults/rules.yaml")
	if err != nil {
		panic("patterns: bundled rules missing: " + err.Error())
	}
	return data
}
