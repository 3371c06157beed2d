// ABOUTME: Configuration loading and validation
// ABOUTME: Layers viper defaults, an optional YAML file, environment and CLI flags
package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings holds the resolved runtime configuration
type Settings struct {
	File     string
	Loop     bool
	Name     string
	Volume   float64
	Monitor  bool
	LogLevel string
	LogFile  string
}

// Device names end up in pactl arguments and daemon object names
var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// setDefaults seeds viper with the built-in defaults
func setDefaults() {
	viper.SetDefault("file", "")
	viper.SetDefault("loop", false)
	viper.SetDefault("name", "VirtualMic")
	viper.SetDefault("volume", 1.0)
	viper.SetDefault("monitor", false)
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")
}

// Load resolves settings from defaults, an optional config file, VIRTMIC_*
// environment variables and, when given, bound CLI flags (highest priority).
func Load(configPath string, flags *pflag.FlagSet) (*Settings, error) {
	viper.Reset()
	setDefaults()

	viper.SetEnvPrefix("VIRTMIC")
	viper.AutomaticEnv()

	if flags != nil {
		if err := viper.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	settings := &Settings{
		File:     viper.GetString("file"),
		Loop:     viper.GetBool("loop"),
		Name:     viper.GetString("name"),
		Volume:   viper.GetFloat64("volume"),
		Monitor:  viper.GetBool("monitor"),
		LogLevel: viper.GetString("loglevel"),
		LogFile:  viper.GetString("logfile"),
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings and clamps the volume multiplier to [0, 2]
func (s *Settings) Validate() error {
	if s.Name == "" {
		return errors.New("device name must not be empty")
	}
	if !nameRe.MatchString(s.Name) {
		return fmt.Errorf("device name %q contains characters outside [A-Za-z0-9._-]", s.Name)
	}

	if s.Volume < 0 {
		s.Volume = 0
	}
	if s.Volume > 2 {
		s.Volume = 2
	}

	switch s.LogLevel {
	case "none", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("unknown log level %q", s.LogLevel)
	}

	return nil
}
