package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config is the mirror layer configuration. The channel fields mirror the
// shared surface block header: the consumer-side UI writes the same values
// from its end, this side seeds the initial state.
type Config struct {
	ChannelName string `mapstructure:"channel_name"`

	// EyeIndex selects the mirrored eye: 0 or 1 for a single eye, 2 for
	// side-by-side dual eye.
	EyeIndex uint32 `mapstructure:"eye_index"`

	// Side-by-side layout percentages, 0-100.
	Overlap  float32 `mapstructure:"overlap"`
	Blend    float32 `mapstructure:"blend"`
	BlendPos float32 `mapstructure:"blend_pos"`

	// Preset names an entry in the presets file that overrides the three
	// blend percentages above.
	Preset      string `mapstructure:"preset"`
	PresetsFile string `mapstructure:"presets_file"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// LivenessThresholdFrames overrides how many unchanged consumer
	// observations mark the channel inactive. Zero keeps the default.
	LivenessThresholdFrames int `mapstructure:"liveness_threshold_frames"`
}

func Default() *Config {
	return &Config{
		ChannelName: "XRMirrorSurface",
		EyeIndex:    2,
		Overlap:     30,
		Blend:       10,
		BlendPos:    50,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("xrmirror")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("XRMIRROR")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Preset != "" {
		if err := cfg.applyPreset(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "XRMirror")
	case "darwin":
		return "/Library/Application Support/XRMirror"
	default:
		return "/etc/xrmirror"
	}
}
