// Package types defines configuration types for Authwatch.
package types

import (
	"fmt"
	"regexp"
	"time"
)

// Package-level defaults
const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultLogOutput   = "stdout"
	DefaultTargetPath  = "/var/log/auth.log"
	DefaultWindow      = "300s"
	DefaultThreshold   = 3
	DefaultPolicy      = PolicyCooldown
	DefaultMetricsPort = 9101
	DefaultMetricsPath = "/metrics"
	DefaultNamespace   = "authwatch"
	DefaultHealthPort  = 8081
	DefaultHealthBind  = "0.0.0.0"
	MinWindow          = 1 * time.Second
)

// Alert policies. The policy decides what happens to a pattern's window once
// an alert fires; it is the sensitivity/specificity control of the daemon.
const (
	// PolicyReset clears the window on every alert. A sustained burst fires
	// again as soon as a fresh burst of Threshold occurrences accumulates.
	PolicyReset = "reset"

	// PolicyCooldown clears the window and additionally suppresses repeat
	// alerts for the same pattern until Window has elapsed since the last
	// alert, no matter how many occurrences keep arriving. This bounds alert
	// cardinality to one per pattern per window during a sustained attack.
	PolicyCooldown = "cooldown"
)

// Package-level variables for validation
var (
	prometheusNamespaceRegex = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	validLogFormats = map[string]bool{
		"json": true,
		"text": true,
	}

	validLogOutputs = map[string]bool{
		"stdout": true,
		"stderr": true,
		"file":   true,
	}

	validPolicies = map[string]bool{
		PolicyReset:    true,
		PolicyCooldown: true,
	}
)

// AuthwatchConfig is the top-level configuration structure.
type AuthwatchConfig struct {
	// Settings contains global configuration (logging).
	Settings GlobalSettings `json:"settings" yaml:"settings"`

	// Target describes the single log file being monitored.
	Target TargetConfig `json:"target" yaml:"target"`

	// Detection contains the sliding-window parameters and patterns.
	Detection DetectionConfig `json:"detection" yaml:"detection"`

	// Sinks contains alert sink configurations.
	Sinks SinkConfigs `json:"sinks,omitempty" yaml:"sinks,omitempty"`

	// Metrics contains the Prometheus exporter configuration.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Health contains the health server configuration.
	Health HealthConfig `json:"health,omitempty" yaml:"health,omitempty"`
}

// GlobalSettings contains global configuration settings.
type GlobalSettings struct {
	LogLevel  string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`
	LogOutput string `json:"logOutput,omitempty" yaml:"logOutput,omitempty"`
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// TargetConfig identifies the monitored log file.
type TargetConfig struct {
	// Path is the absolute path of the log file to tail.
	Path string `json:"path" yaml:"path"`
}

// DetectionConfig contains the sliding-window parameters.
type DetectionConfig struct {
	// Window is the sliding window duration (e.g., "300s"). Occurrences older
	// than Window relative to "now" are pruned before every threshold check.
	Window string `json:"window,omitempty" yaml:"window,omitempty"`

	// Threshold is the occurrence count within Window that triggers an alert.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// Policy selects the post-alert behavior ("reset" or "cooldown").
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Patterns overrides the built-in detection signatures when non-empty.
	Patterns []Pattern `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

// WindowDuration returns the parsed Window. Call only after ApplyDefaults and
// Validate have succeeded.
func (d *DetectionConfig) WindowDuration() time.Duration {
	dur, err := time.ParseDuration(d.Window)
	if err != nil {
		// Validate guarantees parseability; fall back to the default.
		dur, _ = time.ParseDuration(DefaultWindow)
	}
	return dur
}

// SinkConfigs contains all alert sink configurations.
type SinkConfigs struct {
	Console *ConsoleSinkConfig `json:"console,omitempty" yaml:"console,omitempty"`
	Log     *LogSinkConfig     `json:"log,omitempty" yaml:"log,omitempty"`
}

// ConsoleSinkConfig configures the stdout alert sink.
type ConsoleSinkConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LogSinkConfig configures the structured-log alert sink.
type LogSinkConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Port      int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// HealthConfig configures the health/readiness HTTP server.
type HealthConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BindAddress string `json:"bindAddress,omitempty" yaml:"bindAddress,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// ApplyDefaults fills in default values for unset fields.
func (c *AuthwatchConfig) ApplyDefaults() error {
	if err := c.Settings.ApplyDefaults(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if c.Target.Path == "" {
		c.Target.Path = DefaultTargetPath
	}
	if err := c.Detection.ApplyDefaults(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if c.Sinks.Console == nil {
		// Console output is the daemon's alert contract; on by default.
		c.Sinks.Console = &ConsoleSinkConfig{Enabled: true}
	}
	if c.Sinks.Log == nil {
		c.Sinks.Log = &LogSinkConfig{Enabled: false}
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Health.BindAddress == "" {
		c.Health.BindAddress = DefaultHealthBind
	}
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	return nil
}

// ApplyDefaults fills in default logging settings.
func (s *GlobalSettings) ApplyDefaults() error {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = DefaultLogFormat
	}
	if s.LogOutput == "" {
		s.LogOutput = DefaultLogOutput
	}
	return nil
}

// ApplyDefaults fills in the reference detection parameters.
func (d *DetectionConfig) ApplyDefaults() error {
	if d.Window == "" {
		d.Window = DefaultWindow
	}
	if d.Threshold == 0 {
		d.Threshold = DefaultThreshold
	}
	if d.Policy == "" {
		d.Policy = DefaultPolicy
	}
	if len(d.Patterns) == 0 {
		d.Patterns = DefaultPatterns()
	}
	return nil
}

// Validate checks the configuration for correctness.
func (c *AuthwatchConfig) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if c.Target.Path == "" {
		return fmt.Errorf("target: path cannot be empty")
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics: invalid port %d", c.Metrics.Port)
		}
		if !prometheusNamespaceRegex.MatchString(c.Metrics.Namespace) {
			return fmt.Errorf("metrics: invalid namespace %q", c.Metrics.Namespace)
		}
	}
	if c.Health.Enabled {
		if c.Health.Port < 1 || c.Health.Port > 65535 {
			return fmt.Errorf("health: invalid port %d", c.Health.Port)
		}
	}
	if c.Metrics.Enabled && c.Health.Enabled && c.Metrics.Port == c.Health.Port {
		return fmt.Errorf("metrics and health servers cannot share port %d", c.Metrics.Port)
	}
	return nil
}

// Validate checks the logging settings.
func (s *GlobalSettings) Validate() error {
	if !validLogLevels[s.LogLevel] {
		return fmt.Errorf("invalid log level %q", s.LogLevel)
	}
	if !validLogFormats[s.LogFormat] {
		return fmt.Errorf("invalid log format %q", s.LogFormat)
	}
	if !validLogOutputs[s.LogOutput] {
		return fmt.Errorf("invalid log output %q", s.LogOutput)
	}
	if s.LogOutput == "file" && s.LogFile == "" {
		return fmt.Errorf("logFile must be set when logOutput is 'file'")
	}
	return nil
}

// Validate checks the detection parameters.
func (d *DetectionConfig) Validate() error {
	dur, err := time.ParseDuration(d.Window)
	if err != nil {
		return fmt.Errorf("invalid window %q: %w", d.Window, err)
	}
	if dur < MinWindow {
		return fmt.Errorf("window %v is below minimum %v", dur, MinWindow)
	}
	if d.Threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", d.Threshold)
	}
	if !validPolicies[d.Policy] {
		return fmt.Errorf("invalid policy %q (use %q or %q)", d.Policy, PolicyReset, PolicyCooldown)
	}
	if len(d.Patterns) == 0 {
		return fmt.Errorf("at least one pattern is required")
	}
	seen := make(map[string]bool, len(d.Patterns))
	for i, p := range d.Patterns {
		if p.Name == "" {
			return fmt.Errorf("pattern %d: name cannot be empty", i)
		}
		if p.Literal == "" {
			return fmt.Errorf("pattern %q: literal cannot be empty", p.Name)
		}
		if p.AlertMessage == "" {
			return fmt.Errorf("pattern %q: alertMessage cannot be empty", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate pattern name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
