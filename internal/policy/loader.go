package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicy = errors.New("invalid policy")

// Load reads a zone policy. A missing file yields DefaultPolicy. A file
// that is present but unparseable, or names an unknown mode, is an error.
// A present file that omits mode is enforced.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, path, err)
	}

	if policy.Mode == "" {
		policy.Mode = ModeEnforced
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &policy, nil
}

func (p *Policy) Validate() error {
	switch p.Mode {
	case ModePermissive, ModeEnforced:
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, p.Mode)
	}
}

// DefaultPolicy is used when no policy file exists. It is permissive and
// forbids binaries that touch the machine's power state, disks or raw
// network sockets.
func DefaultPolicy() *Policy {
	return &Policy{
		Mode: ModePermissive,
		Zones: Zones{
			Green: ZoneSpec{Binaries: []string{
				"ls", "pwd", "echo", "cat", "head", "tail", "wc", "grep",
				"find", "date", "whoami", "uname", "df", "du", "ps", "git",
			}},
			Yellow: ZoneSpec{Binaries: []string{
				"curl", "wget", "pip", "pip3", "npm", "python", "python3",
				"node", "docker", "kubectl", "make", "go",
			}},
			Red: ZoneSpec{Binaries: []string{
				"mkfs", "mkfs.*", "shutdown", "reboot", "halt", "poweroff", "init",
				"nc", "ncat", "netcat", "socat", "telnet",
			}},
		},
	}
}

// Marshal renders the policy as YAML, as written by `cmdguardian init`.
func (p *Policy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
