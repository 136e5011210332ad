// Package telemetry provides structured logging and Prometheus metrics for
// the agent.
package telemetry

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error)
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is either "json" or "console"
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`

	// Output is "stdout", "stderr", or a file path
	Output string `yaml:"output"`
}

// DefaultLoggingConfig returns console logging at info level on stderr.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// MetricsConfig controls metrics collection and exposition.
type MetricsConfig struct {
	// Enabled turns metric collection on
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes all metric names
	Namespace string `yaml:"namespace"`

	// ListenAddress exposes /metrics over HTTP when non-empty
	ListenAddress string `yaml:"listen_address"`
}

// DefaultMetricsConfig returns disabled metrics with the standard namespace.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "infrapilot",
	}
}
