// Package ssh provides the SSH session used to drive phase commands and file
// transfer against a remote execution target.
package ssh

import (
	"context"
	"time"
)

// Session defines the operations the remote backend needs from an SSH
// connection: command execution, content-based file transfer, and lifecycle
// management. A session is opened once per agent run and serializes all
// commands issued against it.
type Session interface {
	// Connect establishes the SSH connection.
	// Returns an error if the connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the session has an active connection.
	IsConnected() bool

	// Run executes a command on the remote host and returns its result.
	// A non-zero exit status is reported in the result, not as an error;
	// the error return is reserved for transport-level failures.
	Run(ctx context.Context, cmd string) (*ExecResult, error)

	// WriteFile writes content to a remote path via SFTP, creating parent
	// directories as needed.
	WriteFile(ctx context.Context, path string, content []byte, mode uint32) error

	// ReadFile reads a remote file via SFTP.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// ListDir returns the entry names of a remote directory.
	ListDir(ctx context.Context, path string) ([]string, error)
}

// ExecResult represents the outcome of one remote command.
type ExecResult struct {
	// Command is the command string that was executed
	Command string

	// Output is the combined stdout and stderr, trimmed
	Output string

	// ExitCode is the command's exit code (0 on success)
	ExitCode int

	// Duration is the total execution time
	Duration time.Duration
}

// Success returns true if the command exited zero.
func (r *ExecResult) Success() bool {
	return r.ExitCode == 0
}

// TransportError represents an error from the transport layer, as opposed to
// a command's own non-zero exit.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "run", "write-file")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
