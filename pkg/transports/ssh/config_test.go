package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("example.com", "deploy")

	if config.Host != "example.com" {
		t.Errorf("expected host 'example.com', got '%s'", config.Host)
	}
	if config.Port != 22 {
		t.Errorf("expected port 22, got %d", config.Port)
	}
	if config.User != "deploy" {
		t.Errorf("expected user 'deploy', got '%s'", config.User)
	}
	if config.AuthMethod != AuthMethodKey {
		t.Errorf("expected key auth by default, got '%s'", config.AuthMethod)
	}
	if !config.StrictHostKeyChecking {
		t.Error("expected strict host key checking by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "id_test")
	if err := os.WriteFile(keyPath, []byte("not a real key"), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid password config",
			mutate:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "missing host",
			mutate:    func(c *Config) { c.Host = "" },
			expectErr: true,
		},
		{
			name:      "invalid port",
			mutate:    func(c *Config) { c.Port = 70000 },
			expectErr: true,
		},
		{
			name:      "missing user",
			mutate:    func(c *Config) { c.User = "" },
			expectErr: true,
		},
		{
			name:      "password auth without password",
			mutate:    func(c *Config) { c.Password = "" },
			expectErr: true,
		},
		{
			name: "key auth with existing key",
			mutate: func(c *Config) {
				c.AuthMethod = AuthMethodKey
				c.PrivateKeyPath = keyPath
			},
			expectErr: false,
		},
		{
			name: "key auth with missing key file",
			mutate: func(c *Config) {
				c.AuthMethod = AuthMethodKey
				c.PrivateKeyPath = filepath.Join(tmpDir, "does-not-exist")
			},
			expectErr: true,
		},
		{
			name:      "unsupported auth method",
			mutate:    func(c *Config) { c.AuthMethod = "agent" },
			expectErr: true,
		},
		{
			name:      "non-positive connection timeout",
			mutate:    func(c *Config) { c.ConnectionTimeout = 0 },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{
				Host:              "example.com",
				Port:              22,
				User:              "deploy",
				AuthMethod:        AuthMethodPassword,
				Password:          "secret",
				ConnectionTimeout: 30 * time.Second,
			}
			tt.mutate(config)

			err := config.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("example.com", "deploy")
	config.Port = 2222

	if got := config.Address(); got != "example.com:2222" {
		t.Errorf("expected 'example.com:2222', got '%s'", got)
	}
}
