package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.ChannelName != "XRMirrorSurface" {
		t.Errorf("channel name = %q", cfg.ChannelName)
	}
	if cfg.EyeIndex != 2 {
		t.Errorf("eye index = %d, want dual-eye default", cfg.EyeIndex)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("defaults do not validate: %v", errs)
	}
}

func TestValidateClampsPercentages(t *testing.T) {
	cfg := Default()
	cfg.Overlap = 150
	cfg.Blend = -5
	cfg.BlendPos = 100

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("errs = %v, want two clamp reports", errs)
	}
	if cfg.Overlap != 100 {
		t.Errorf("overlap = %v, want 100", cfg.Overlap)
	}
	if cfg.Blend != 0 {
		t.Errorf("blend = %v, want 0", cfg.Blend)
	}
	if cfg.BlendPos != 100 {
		t.Errorf("blend_pos = %v, want 100 untouched", cfg.BlendPos)
	}
}

func TestValidateRestoresChannelName(t *testing.T) {
	cfg := Default()
	cfg.ChannelName = ""
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Fatalf("errs = %v", errs)
	}
	if cfg.ChannelName != "XRMirrorSurface" {
		t.Errorf("channel name = %q", cfg.ChannelName)
	}
}

func TestValidateLogFields(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	cfg.LogFormat = "xml"
	if errs := cfg.Validate(); len(errs) != 2 {
		t.Errorf("errs = %v, want two", errs)
	}
}

func TestLoadPresetsBuiltins(t *testing.T) {
	presets, err := LoadPresets("")
	if err != nil {
		t.Fatal(err)
	}
	def, ok := presets["default"]
	if !ok {
		t.Fatal("no default preset")
	}
	if def.Overlap != 30 || def.Blend != 10 || def.BlendPos != 50 {
		t.Errorf("default preset = %+v", def)
	}
}

func TestLoadPresetsFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	data := []byte("default:\n  overlap: 42\n  blend: 12\n  blend_pos: 60\ncustom:\n  overlap: 5\n  blend: 1\n  blend_pos: 50\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := presets["default"]; got.Overlap != 42 {
		t.Errorf("override not applied: %+v", got)
	}
	if got := presets["custom"]; got.Blend != 1 {
		t.Errorf("custom preset = %+v", got)
	}
	// Builtins not named in the file survive.
	if _, ok := presets["wide"]; !ok {
		t.Error("builtin preset lost")
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := Default()
	cfg.Preset = "wide"
	if err := cfg.applyPreset(); err != nil {
		t.Fatal(err)
	}
	if cfg.Overlap != 50 || cfg.Blend != 15 {
		t.Errorf("preset not applied: overlap=%v blend=%v", cfg.Overlap, cfg.Blend)
	}

	cfg.Preset = "nonsense"
	if err := cfg.applyPreset(); err == nil {
		t.Fatal("unknown preset accepted")
	}
}
