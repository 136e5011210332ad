package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// syncBuffer serializes writes from the stdout and stderr streams so the
// combined output keeps a consistent byte order.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run executes a command on the remote host and returns its combined output
// and exit status. The calling goroutine blocks until the command completes;
// a non-zero exit is not an error, transport failures are.
func (c *Client) Run(ctx context.Context, cmd string) (*ExecResult, error) {
	startTime := time.Now()

	log.Debug().Str("command", cmd).Msg("executing remote command")

	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "run",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	defer session.Close()

	var combined syncBuffer
	session.Stdout = &combined
	session.Stderr = &combined

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		// Context cancelled, try to signal the session
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneChan:
		// Command completed
	}

	result := &ExecResult{
		Command:  cmd,
		Output:   strings.TrimSpace(combined.String()),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Str("command", cmd).
		Int("output_len", len(result.Output)).
		Dur("duration", result.Duration).
		Err(execErr).
		Msg("remote command completed")

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			// Command ran but returned non-zero exit code
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		// Other error (connection issue, cancellation, etc.)
		return nil, &TransportError{
			Op:          "run",
			Err:         execErr,
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	result.ExitCode = 0
	return result, nil
}
