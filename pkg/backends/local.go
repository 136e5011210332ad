package backends

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalBackend executes commands as subprocesses in a local working directory.
type LocalBackend struct {
	workDir string

	// shell is the interpreter used to run phase commands
	shell string
}

// NewLocalBackend creates a backend rooted at the given working directory.
func NewLocalBackend(workDir string) (*LocalBackend, error) {
	if workDir == "" {
		return nil, fmt.Errorf("working directory is required")
	}

	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	return &LocalBackend{
		workDir: abs,
		shell:   "sh",
	}, nil
}

// WorkDir returns the backend's working directory.
func (b *LocalBackend) WorkDir() string {
	return b.workDir
}

// Bootstrap ensures the working directory exists.
func (b *LocalBackend) Bootstrap(ctx context.Context) error {
	if err := os.MkdirAll(b.workDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	return nil
}

// Execute runs a command in the working directory and returns its combined
// output and exit status. The call blocks until the command completes.
func (b *LocalBackend) Execute(ctx context.Context, command string) (*Result, error) {
	startTime := time.Now()

	log.Debug().
		Str("command", command).
		Str("workdir", b.workDir).
		Msg("executing local command")

	cmd := exec.CommandContext(ctx, b.shell, "-c", command)
	cmd.Dir = b.workDir

	output, err := cmd.CombinedOutput()

	result := &Result{
		Command:  command,
		Output:   strings.TrimSpace(string(output)),
		Duration: time.Since(startTime),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Command ran but returned non-zero exit code
			result.ExitCode = exitErr.ExitCode()

			log.Debug().
				Str("command", command).
				Int("exit_code", result.ExitCode).
				Dur("duration", result.Duration).
				Msg("local command failed")

			return result, nil
		}
		// The command could not be started at all
		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	log.Debug().
		Str("command", command).
		Dur("duration", result.Duration).
		Msg("local command completed")

	return result, nil
}

// DeliverFiles writes the file set into the working directory.
func (b *LocalBackend) DeliverFiles(ctx context.Context, files map[string]string) error {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, relPath := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		target := filepath.Join(b.workDir, filepath.FromSlash(relPath))

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", relPath, err)
		}

		if err := os.WriteFile(target, []byte(files[relPath]), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", relPath, err)
		}

		log.Debug().Str("path", relPath).Msg("file delivered")
	}

	log.Info().Int("files", len(files)).Str("workdir", b.workDir).Msg("file set delivered")
	return nil
}

// CollectOutputs probes the well-known output locations under the working
// directory and returns whichever exist.
func (b *LocalBackend) CollectOutputs(ctx context.Context) (map[string]string, error) {
	outputs := make(map[string]string)

	for _, location := range outputLocations {
		content, err := os.ReadFile(filepath.Join(b.workDir, filepath.FromSlash(location)))
		if err != nil {
			continue
		}
		recordArtifact(outputs, location, content)
	}

	entries, err := os.ReadDir(filepath.Join(b.workDir, filepath.FromSlash(stacksDir)))
	if err == nil && len(entries) > 0 {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		outputs["stacks"] = strings.Join(names, "\n")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	log.Debug().Int("artifacts", len(outputs)).Msg("deployment outputs collected")
	return outputs, nil
}

// Close releases resources. The local backend holds none.
func (b *LocalBackend) Close() error {
	return nil
}
