package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Preset is one named overlap/blend/blend-position triple. Presets let the
// consumer-side UI and the producer agree on a layout by name instead of
// shipping three raw percentages around.
type Preset struct {
	Overlap  float32 `yaml:"overlap"`
	Blend    float32 `yaml:"blend"`
	BlendPos float32 `yaml:"blend_pos"`
}

// builtinPresets cover the common side-by-side layouts. A presets file can
// override or extend them.
var builtinPresets = map[string]Preset{
	"flat":    {Overlap: 0, Blend: 0, BlendPos: 50},
	"narrow":  {Overlap: 20, Blend: 8, BlendPos: 50},
	"default": {Overlap: 30, Blend: 10, BlendPos: 50},
	"wide":    {Overlap: 50, Blend: 15, BlendPos: 50},
}

// LoadPresets reads a presets YAML file: a flat mapping of name to triple.
// An empty path returns only the builtins.
func LoadPresets(path string) (map[string]Preset, error) {
	presets := make(map[string]Preset, len(builtinPresets))
	for name, p := range builtinPresets {
		presets[name] = p
	}
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	var fromFile map[string]Preset
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse presets file %s: %w", filepath.Base(path), err)
	}
	for name, p := range fromFile {
		presets[name] = p
	}
	return presets, nil
}

// PresetNames lists the available preset names, sorted, for CLI help and
// error messages.
func PresetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyPreset overwrites the blend percentages from the named preset.
func (c *Config) applyPreset() error {
	presets, err := LoadPresets(c.PresetsFile)
	if err != nil {
		return err
	}
	p, ok := presets[c.Preset]
	if !ok {
		return fmt.Errorf("unknown preset %q (have %v)", c.Preset, PresetNames(presets))
	}
	c.Overlap = p.Overlap
	c.Blend = p.Blend
	c.BlendPos = p.BlendPos
	return nil
}
