package policy

// Mode decides what happens to binaries that are in no zone.
type Mode string

const (
	ModePermissive Mode = "permissive"
	ModeEnforced   Mode = "enforced"
)

// Restrictiveness orders modes; higher is stricter.
func (m Mode) Restrictiveness() int {
	if m == ModeEnforced {
		return 1
	}
	return 0
}

// Zone is the trust tier a binary was classified into.
type Zone string

const (
	ZoneGreen  Zone = "green"
	ZoneYellow Zone = "yellow"
	ZoneRed    Zone = "red"
	ZoneNone   Zone = ""
)

type Policy struct {
	Mode            Mode  `yaml:"mode"`
	InspectPipeline bool  `yaml:"inspect_pipeline,omitempty"`
	Zones           Zones `yaml:"zones"`
}

type Zones struct {
	Green  ZoneSpec `yaml:"green"`
	Yellow ZoneSpec `yaml:"yellow"`
	Red    ZoneSpec `yaml:"red"`
}

// ZoneSpec lists binaries by name. Entries containing glob metacharacters
// (* ? [ {) are matched as globs, e.g. "python3*".
type ZoneSpec struct {
	Binaries []string `yaml:"binaries"`
}
