// Package config loads and validates the infrapilot configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/infrapilot/infrapilot/pkg/pipeline"
	"github.com/infrapilot/infrapilot/pkg/telemetry"
	"github.com/infrapilot/infrapilot/pkg/transports/ssh"
)

// Execution modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config is the root configuration.
type Config struct {
	// Mode selects the execution backend
	Mode string `yaml:"mode" validate:"required,oneof=local remote"`

	// MaxCycles bounds the outer cycle loop
	MaxCycles int `yaml:"max_cycles" validate:"min=1"`

	// MaxPasses bounds full passes inside one pipeline invocation
	MaxPasses int `yaml:"max_passes" validate:"min=1"`

	// WorkDir is the working directory for the local backend
	WorkDir string `yaml:"work_dir"`

	// Commands overrides individual phase commands
	Commands CommandsConfig `yaml:"commands"`

	// Remote configures the SSH backend, required in remote mode
	Remote RemoteConfig `yaml:"remote"`

	// Generator configures the code-generation service
	Generator GeneratorConfig `yaml:"generator"`

	// Logging configures the structured logger
	Logging telemetry.LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus exporter
	Metrics telemetry.MetricsConfig `yaml:"metrics"`

	// Store configures run history persistence
	Store StoreConfig `yaml:"store"`
}

// CommandsConfig overrides the per-phase commands. Empty fields keep the
// defaults.
type CommandsConfig struct {
	Build      string `yaml:"build"`
	Synthesize string `yaml:"synthesize"`
	Lint       string `yaml:"lint"`
	Deploy     string `yaml:"deploy"`
}

// RemoteConfig configures the remote SSH execution target.
type RemoteConfig struct {
	// Host is the remote host
	Host string `yaml:"host"`

	// Port is the SSH port
	Port int `yaml:"port"`

	// User is the SSH user
	User string `yaml:"user"`

	// AuthMethod is password or key
	AuthMethod string `yaml:"auth_method" validate:"omitempty,oneof=password key"`

	// Password for password auth; the INFRAPILOT_SSH_PASSWORD environment
	// variable takes precedence
	Password string `yaml:"password"`

	// PrivateKeyPath for key auth, empty for default key discovery
	PrivateKeyPath string `yaml:"private_key_path"`

	// KnownHostsPath overrides the known_hosts location
	KnownHostsPath string `yaml:"known_hosts_path"`

	// StrictHostKeyChecking rejects unknown host keys when true
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking"`

	// WorkDir is the working directory on the remote host
	WorkDir string `yaml:"work_dir"`

	// RepoURL is cloned into the working directory during bootstrap
	RepoURL string `yaml:"repo_url"`

	// Env is exported into the remote shell profile during bootstrap
	Env map[string]string `yaml:"env"`
}

// GeneratorConfig configures the code-generation service client.
type GeneratorConfig struct {
	// Endpoint is the service URL
	Endpoint string `yaml:"endpoint" validate:"required,url"`

	// APIKey authenticates against the service; the INFRAPILOT_API_KEY
	// environment variable takes precedence
	APIKey string `yaml:"api_key"`
}

// StoreConfig configures run history persistence.
type StoreConfig struct {
	// Enabled turns persistence on
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file
	Path string `yaml:"path"`
}

// Default returns a configuration with working defaults for local mode.
func Default() *Config {
	return &Config{
		Mode:      ModeLocal,
		MaxCycles: 3,
		MaxPasses: 2,
		WorkDir:   "./workspace",
		Remote: RemoteConfig{
			Port:                  22,
			AuthMethod:            "key",
			StrictHostKeyChecking: true,
			WorkDir:               "~/infrapilot",
		},
		Logging: telemetry.DefaultLoggingConfig(),
		Metrics: telemetry.DefaultMetricsConfig(),
		Store: StoreConfig{
			Path: "infrapilot.db",
		},
	}
}

// Load reads a YAML configuration file, layers it over the defaults, applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvironment applies environment variable overrides for secrets so they
// never need to live in the config file.
func (c *Config) applyEnvironment() {
	if key := os.Getenv("INFRAPILOT_API_KEY"); key != "" {
		c.Generator.APIKey = key
	}
	if pw := os.Getenv("INFRAPILOT_SSH_PASSWORD"); pw != "" {
		c.Remote.Password = pw
	}
}

// Validate checks structural soundness plus the cross-field rules the struct
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Generator.APIKey == "" {
		return fmt.Errorf("generator API key is not configured (set generator.api_key or INFRAPILOT_API_KEY)")
	}

	if c.Mode == ModeRemote {
		if c.Remote.Host == "" {
			return fmt.Errorf("remote mode requires remote.host")
		}
		if c.Remote.User == "" {
			return fmt.Errorf("remote mode requires remote.user")
		}
	}

	return nil
}

// PipelineCommands returns the configured phase commands layered over the
// defaults.
func (c *Config) PipelineCommands() pipeline.Commands {
	commands := pipeline.DefaultCommands()
	overrides := map[pipeline.Phase]string{
		pipeline.PhaseBuild:      c.Commands.Build,
		pipeline.PhaseSynthesize: c.Commands.Synthesize,
		pipeline.PhaseLint:       c.Commands.Lint,
		pipeline.PhaseDeploy:     c.Commands.Deploy,
	}
	for phase, command := range overrides {
		if strings.TrimSpace(command) != "" {
			commands[phase] = command
		}
	}
	return commands
}

// SSHConfig builds the transport configuration for remote mode.
func (c *Config) SSHConfig() *ssh.Config {
	sc := ssh.DefaultConfig(c.Remote.Host, c.Remote.User)
	if c.Remote.Port != 0 {
		sc.Port = c.Remote.Port
	}
	if c.Remote.AuthMethod != "" {
		sc.AuthMethod = ssh.AuthMethod(c.Remote.AuthMethod)
	}
	sc.Password = c.Remote.Password
	sc.PrivateKeyPath = c.Remote.PrivateKeyPath
	sc.KnownHostsPath = c.Remote.KnownHostsPath
	sc.StrictHostKeyChecking = c.Remote.StrictHostKeyChecking
	return sc
}
