package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Sidecar SidecarConfig `mapstructure:"sidecar" yaml:"sidecar"`
	Planner PlannerConfig `mapstructure:"planner" yaml:"planner"`
	Safety  SafetyConfig  `mapstructure:"safety" yaml:"safety"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// SidecarConfig describes how the planning-service process is launched and
// supervised.
type SidecarConfig struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	Port               int           `mapstructure:"port" yaml:"port"`
	Command            string        `mapstructure:"command" yaml:"command"`
	Args               []string      `mapstructure:"args" yaml:"args"`
	WorkDir            string        `mapstructure:"work_dir" yaml:"work_dir"`
	MaxRestartAttempts int           `mapstructure:"max_restart_attempts" yaml:"max_restart_attempts"`
	RestartDelay       time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`
	HealthTimeout      time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	HealthInterval     time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
	HealthProbeTimeout time.Duration `mapstructure:"health_probe_timeout" yaml:"health_probe_timeout"`
}

// BaseURL returns the loopback endpoint the supervised process listens on.
func (s SidecarConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// PlannerConfig configures the HTTP client for the planning service.
type PlannerConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SafetyConfig holds defaults for the safety classifier. Per-category
// approval modes live under safety.approval_mode.<category> and are read
// through the preference store, not unmarshaled here.
type SafetyConfig struct {
	DefaultApprovalMode string `mapstructure:"default_approval_mode" yaml:"default_approval_mode"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "orange-agent")
	v.SetDefault("logger.log_file", "orange-agent.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Sidecar --
	v.SetDefault("sidecar.host", "127.0.0.1")
	v.SetDefault("sidecar.port", 7789)
	v.SetDefault("sidecar.command", "python3")
	v.SetDefault("sidecar.args", []string{
		"-m", "uvicorn", "app.main:app", "--host", "127.0.0.1", "--port", "7789",
	})
	v.SetDefault("sidecar.work_dir", "agent")
	v.SetDefault("sidecar.max_restart_attempts", 3)
	v.SetDefault("sidecar.restart_delay", "500ms")
	v.SetDefault("sidecar.health_timeout", "8s")
	v.SetDefault("sidecar.health_interval", "200ms")
	v.SetDefault("sidecar.health_probe_timeout", "700ms")

	// -- Planner --
	v.SetDefault("planner.base_url", "http://127.0.0.1:7789")
	v.SetDefault("planner.request_timeout", "30s")

	// -- Safety --
	v.SetDefault("safety.default_approval_mode", "always_ask")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Sidecar.Port <= 0 || c.Sidecar.Port > 65535 {
		return fmt.Errorf("sidecar.port must be a valid TCP port, got %d", c.Sidecar.Port)
	}
	if c.Sidecar.MaxRestartAttempts < 0 {
		return fmt.Errorf("sidecar.max_restart_attempts must be non-negative")
	}
	if c.Sidecar.HealthInterval <= 0 {
		return fmt.Errorf("sidecar.health_interval must be a positive duration")
	}
	if c.Sidecar.HealthTimeout < c.Sidecar.HealthInterval {
		return fmt.Errorf("sidecar.health_timeout must be at least one health_interval")
	}
	if c.Planner.BaseURL == "" {
		return fmt.Errorf("planner.base_url is a required configuration field")
	}
	if c.Planner.RequestTimeout <= 0 {
		return fmt.Errorf("planner.request_timeout must be a positive duration")
	}
	return nil
}
