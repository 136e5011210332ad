package backends

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/infrapilot/infrapilot/pkg/transports/ssh"
)

// RemoteConfig holds the remote execution target's settings beyond the SSH
// session itself.
type RemoteConfig struct {
	// WorkDir is the remote working directory phase commands run in
	WorkDir string

	// RepoURL is the source repository cloned into the working directory
	RepoURL string

	// Env is exported into the remote shell's persistent profile
	Env map[string]string
}

// RemoteBackend executes commands over an established SSH session. The
// session's lifetime spans one agent run: it is connected before the first
// cycle and disconnected by Close after the last.
type RemoteBackend struct {
	session ssh.Session
	config  RemoteConfig
}

// NewRemoteBackend creates a backend over the given session. The session must
// already be connected.
func NewRemoteBackend(session ssh.Session, config RemoteConfig) (*RemoteBackend, error) {
	if config.WorkDir == "" {
		return nil, fmt.Errorf("remote working directory is required")
	}

	return &RemoteBackend{
		session: session,
		config:  config,
	}, nil
}

// Bootstrap prepares the remote environment once, before any phase command:
// the project source is cloned or fast-forwarded, declared dependencies are
// installed when manifest files are present, and configured environment
// variables land in the shell's persistent profile.
func (b *RemoteBackend) Bootstrap(ctx context.Context) error {
	if err := b.ensureSource(ctx); err != nil {
		return err
	}

	if err := b.installDependencies(ctx); err != nil {
		return err
	}

	if err := b.exportEnvironment(ctx); err != nil {
		return err
	}

	log.Info().Str("workdir", b.config.WorkDir).Msg("remote environment ready")
	return nil
}

// ensureSource clones the project source if absent, otherwise fast-forwards.
func (b *RemoteBackend) ensureSource(ctx context.Context) error {
	workDir := shellQuote(b.config.WorkDir)

	result, err := b.session.Run(ctx, fmt.Sprintf("test -d %s/.git", workDir))
	if err != nil {
		return err
	}

	var cmd string
	if result.Success() {
		cmd = fmt.Sprintf("git -C %s pull --ff-only", workDir)
	} else {
		if b.config.RepoURL == "" {
			// No source repository configured; just ensure the directory
			cmd = fmt.Sprintf("mkdir -p %s", workDir)
		} else {
			cmd = fmt.Sprintf("git clone %s %s", shellQuote(b.config.RepoURL), workDir)
		}
	}

	result, err = b.session.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("source bootstrap failed (%s): %s", cmd, result.Output)
	}

	return nil
}

// installDependencies installs declared dependencies for whichever manifest
// files are present in the working directory.
func (b *RemoteBackend) installDependencies(ctx context.Context) error {
	workDir := shellQuote(b.config.WorkDir)

	installers := []struct {
		manifest string
		command  string
	}{
		{"package.json", "npm install"},
		{"requirements.txt", "pip install -r requirements.txt"},
	}

	for _, installer := range installers {
		result, err := b.session.Run(ctx, fmt.Sprintf("test -f %s/%s", workDir, installer.manifest))
		if err != nil {
			return err
		}
		if !result.Success() {
			continue
		}

		log.Debug().Str("manifest", installer.manifest).Msg("installing remote dependencies")

		result, err = b.session.Run(ctx, fmt.Sprintf("cd %s && %s", workDir, installer.command))
		if err != nil {
			return err
		}
		if !result.Success() {
			return fmt.Errorf("dependency install failed (%s): %s", installer.command, result.Output)
		}
	}

	return nil
}

// exportEnvironment appends export lines to the remote profile, once each.
func (b *RemoteBackend) exportEnvironment(ctx context.Context) error {
	keys := make([]string, 0, len(b.config.Env))
	for key := range b.config.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		line := fmt.Sprintf("export %s=%s", key, shellQuote(b.config.Env[key]))
		cmd := fmt.Sprintf("grep -qxF %s ~/.profile 2>/dev/null || echo %s >> ~/.profile",
			shellQuote(line), shellQuote(line))

		result, err := b.session.Run(ctx, cmd)
		if err != nil {
			return err
		}
		if !result.Success() {
			return fmt.Errorf("failed to export %s: %s", key, result.Output)
		}
	}

	return nil
}

// Execute runs a command in the remote working directory over the session.
// The profile is sourced first so exported environment variables apply to
// non-login exec sessions.
func (b *RemoteBackend) Execute(ctx context.Context, command string) (*Result, error) {
	full := fmt.Sprintf(". ~/.profile 2>/dev/null; cd %s && %s", shellQuote(b.config.WorkDir), command)

	execResult, err := b.session.Run(ctx, full)
	if err != nil {
		return nil, err
	}

	return &Result{
		Command:  command,
		Output:   execResult.Output,
		ExitCode: execResult.ExitCode,
		Duration: execResult.Duration,
	}, nil
}

// DeliverFiles transfers the file set into the remote working directory.
func (b *RemoteBackend) DeliverFiles(ctx context.Context, files map[string]string) error {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, relPath := range paths {
		target := path.Join(b.config.WorkDir, relPath)
		if err := b.session.WriteFile(ctx, target, []byte(files[relPath]), 0644); err != nil {
			return err
		}
	}

	log.Info().Int("files", len(files)).Str("workdir", b.config.WorkDir).Msg("file set transferred")
	return nil
}

// CollectOutputs probes the well-known output locations on the remote host
// and returns whichever exist.
func (b *RemoteBackend) CollectOutputs(ctx context.Context) (map[string]string, error) {
	outputs := make(map[string]string)

	for _, location := range outputLocations {
		content, err := b.session.ReadFile(ctx, path.Join(b.config.WorkDir, location))
		if err != nil {
			if IsConnectivity(err) && isTemporary(err) {
				return nil, err
			}
			// Missing artifact, not an error
			continue
		}
		recordArtifact(outputs, location, content)
	}

	names, err := b.session.ListDir(ctx, path.Join(b.config.WorkDir, stacksDir))
	if err == nil && len(names) > 0 {
		outputs["stacks"] = strings.Join(names, "\n")
	}

	log.Debug().Int("artifacts", len(outputs)).Msg("deployment outputs collected")
	return outputs, nil
}

// Close disconnects the underlying session.
func (b *RemoteBackend) Close() error {
	return b.session.Disconnect()
}

// isTemporary reports whether a transport error is marked retryable.
func isTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// shellQuote wraps a value in single quotes, escaping embedded single quotes,
// so it survives the remote shell unmodified.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
