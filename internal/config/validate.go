package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config and returns all errors found. Percentage
// fields feed shader math directly, so out-of-range values are clamped to
// [0,100] rather than rejected; other problems are logged as warnings and
// do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.ChannelName == "" {
		errs = append(errs, fmt.Errorf("channel_name is empty, using default"))
		c.ChannelName = Default().ChannelName
	}

	clampPct := func(name string, v *float32) {
		switch {
		case *v < 0:
			errs = append(errs, fmt.Errorf("%s %v is below 0, clamping", name, *v))
			*v = 0
		case *v > 100:
			errs = append(errs, fmt.Errorf("%s %v exceeds 100, clamping", name, *v))
			*v = 100
		}
	}
	clampPct("overlap", &c.Overlap)
	clampPct("blend", &c.Blend)
	clampPct("blend_pos", &c.BlendPos)

	if c.LivenessThresholdFrames < 0 {
		errs = append(errs, fmt.Errorf("liveness_threshold_frames %d is negative, using default", c.LivenessThresholdFrames))
		c.LivenessThresholdFrames = 0
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
