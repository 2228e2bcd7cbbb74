// Package config loads serialctl settings from a YAML file and SERIALCTL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	serialcore "github.com/allbin/go-serialcore"
)

// Config represents the application configuration
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Receive  ReceiveConfig  `mapstructure:"receive"`
	Registry RegistryConfig `mapstructure:"registry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SerialConfig is the port configuration used when none is given explicitly
type SerialConfig struct {
	BaudRate    int    `mapstructure:"baud_rate"`
	DataBits    int    `mapstructure:"data_bits"`
	StopBits    int    `mapstructure:"stop_bits"`
	Parity      string `mapstructure:"parity"`
	FlowControl string `mapstructure:"flow_control"`
	TimeoutMS   int    `mapstructure:"timeout_ms"`
}

// ReceiveConfig bounds receive_data
type ReceiveConfig struct {
	DefaultMaxBytes int `mapstructure:"default_max_bytes"`
	MaxBytes        int `mapstructure:"max_bytes"`
}

// RegistryConfig selects how ports are enumerated
type RegistryConfig struct {
	Enumerator string `mapstructure:"enumerator"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

const (
	EnumeratorSystem = "system"
	EnumeratorDevfs  = "devfs"
)

// Load reads the configuration. An empty path searches for serialctl.yaml
// in the working directory and ~/.config/serialctl; finding none is not an
// error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("serialctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "serialctl"))
		}
	}

	// Environment variable support
	v.SetEnvPrefix("SERIALCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := serialcore.DefaultConfig()

	// Serial defaults
	v.SetDefault("serial.baud_rate", d.BaudRate)
	v.SetDefault("serial.data_bits", d.DataBits)
	v.SetDefault("serial.stop_bits", d.StopBits)
	v.SetDefault("serial.parity", d.Parity.String())
	v.SetDefault("serial.flow_control", d.FlowControl.String())
	v.SetDefault("serial.timeout_ms", d.TimeoutMS)

	// Receive defaults
	v.SetDefault("receive.default_max_bytes", serialcore.DefaultReceiveSize)
	v.SetDefault("receive.max_bytes", serialcore.MaxReceiveSize)

	v.SetDefault("registry.enumerator", EnumeratorSystem)

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// validate validates the configuration
func validate(config *Config) error {
	if _, err := config.SerialConfig(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}

	if config.Receive.DefaultMaxBytes <= 0 {
		return fmt.Errorf("receive.default_max_bytes must be positive")
	}
	if config.Receive.MaxBytes < config.Receive.DefaultMaxBytes {
		return fmt.Errorf("receive.max_bytes must be at least receive.default_max_bytes")
	}

	validEnumerators := []string{EnumeratorSystem, EnumeratorDevfs}
	if !slices.Contains(validEnumerators, config.Registry.Enumerator) {
		return fmt.Errorf("registry.enumerator must be one of: %v", validEnumerators)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validFormats := []string{"json", "console"}
	if !slices.Contains(validFormats, config.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	return nil
}

// SerialConfig converts the serial section into a validated port configuration
func (c *Config) SerialConfig() (serialcore.Config, error) {
	parity, err := serialcore.ParseParity(c.Serial.Parity)
	if err != nil {
		return serialcore.Config{}, err
	}
	flow, err := serialcore.ParseFlowControl(c.Serial.FlowControl)
	if err != nil {
		return serialcore.Config{}, err
	}

	return serialcore.NewConfig(
		serialcore.WithBaudRate(c.Serial.BaudRate),
		serialcore.WithDataBits(c.Serial.DataBits),
		serialcore.WithStopBits(c.Serial.StopBits),
		serialcore.WithParity(parity),
		serialcore.WithFlowControl(flow),
		serialcore.WithTimeout(c.Serial.TimeoutMS),
	)
}
