package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a zone policy fragment kept in the policy.d directory.
type Pack struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	PackVersion     string `yaml:"version"`
	Author          string `yaml:"author"`
	Mode            Mode   `yaml:"mode"`
	InspectPipeline bool   `yaml:"inspect_pipeline"`
	Zones           Zones  `yaml:"zones"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	Binaries    int
	Err         error
}

// LoadPacks reads all .yaml files from packsDir and merges them into a copy
// of base. Zone binaries are unioned and the most restrictive mode wins.
// Files whose name starts with "_" are listed but not applied. Packs that
// fail to parse are reported in their PackInfo and skipped.
func LoadPacks(packsDir string, base *Policy) (*Policy, []PackInfo, error) {
	var infos []PackInfo

	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	result := clonePolicy(base)

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			infos = append(infos, PackInfo{Name: baseName, Enabled: enabled, Path: path, Err: err})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			Binaries:    len(pack.Zones.Green.Binaries) + len(pack.Zones.Yellow.Binaries) + len(pack.Zones.Red.Binaries),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if !enabled {
			continue
		}
		mergePackInto(result, pack)
	}

	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	switch pack.Mode {
	case "", ModePermissive, ModeEnforced:
	default:
		return nil, fmt.Errorf("%w: pack %s: unknown mode %q", ErrInvalidPolicy, path, pack.Mode)
	}
	return &pack, nil
}

func mergePackInto(target *Policy, pack *Pack) {
	if pack.Mode.Restrictiveness() > target.Mode.Restrictiveness() {
		target.Mode = pack.Mode
	}
	target.InspectPipeline = target.InspectPipeline || pack.InspectPipeline

	target.Zones.Green.Binaries = union(target.Zones.Green.Binaries, pack.Zones.Green.Binaries)
	target.Zones.Yellow.Binaries = union(target.Zones.Yellow.Binaries, pack.Zones.Yellow.Binaries)
	target.Zones.Red.Binaries = union(target.Zones.Red.Binaries, pack.Zones.Red.Binaries)
}

func union(dst, src []string) []string {
	existing := make(map[string]bool, len(dst))
	for _, b := range dst {
		existing[b] = true
	}
	for _, b := range src {
		if !existing[b] {
			existing[b] = true
			dst = append(dst, b)
		}
	}
	return dst
}

func clonePolicy(p *Policy) *Policy {
	return &Policy{
		Mode:            p.Mode,
		InspectPipeline: p.InspectPipeline,
		Zones: Zones{
			Green:  ZoneSpec{Binaries: append([]string(nil), p.Zones.Green.Binaries...)},
			Yellow: ZoneSpec{Binaries: append([]string(nil), p.Zones.Yellow.Binaries...)},
			Red:    ZoneSpec{Binaries: append([]string(nil), p.Zones.Red.Binaries...)},
		},
	}
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
