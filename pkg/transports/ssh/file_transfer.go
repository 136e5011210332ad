package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// WriteFile writes content to a remote path via SFTP, creating parent
// directories as needed. Unlike a path-to-path upload, the content comes from
// memory: generated file sets never touch the local disk.
func (c *Client) WriteFile(ctx context.Context, remotePath string, content []byte, mode uint32) error {
	log.Debug().
		Str("remote", remotePath).
		Int("bytes", len(content)).
		Uint32("mode", mode).
		Msg("writing remote file")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	// Ensure remote directory exists
	remoteDir := path.Dir(remotePath)
	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return &TransportError{
			Op:          "write-file",
			Err:         fmt.Errorf("failed to create remote directory: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "write-file",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	defer remoteFile.Close()

	if err := writeWithContext(ctx, remoteFile, content); err != nil {
		return &TransportError{
			Op:          "write-file",
			Err:         fmt.Errorf("failed to write remote file: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Msg("failed to set file permissions")
		}
	}

	return nil
}

// ReadFile reads a remote file via SFTP.
func (c *Client) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	log.Debug().Str("remote", remotePath).Msg("reading remote file")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return nil, &TransportError{
			Op:          "read-file",
			Err:         fmt.Errorf("failed to open remote file: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}
	defer remoteFile.Close()

	content, err := io.ReadAll(remoteFile)
	if err != nil {
		return nil, &TransportError{
			Op:          "read-file",
			Err:         fmt.Errorf("failed to read remote file: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return content, nil
}

// ListDir returns the entry names of a remote directory.
func (c *Client) ListDir(ctx context.Context, remotePath string) ([]string, error) {
	log.Debug().Str("remote", remotePath).Msg("listing remote directory")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	entries, err := sftpClient.ReadDir(remotePath)
	if err != nil {
		return nil, &TransportError{
			Op:          "list-dir",
			Err:         fmt.Errorf("failed to read remote directory: %w", err),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return names, nil
}

// createSFTPClient creates a new SFTP client on the current connection.
func (c *Client) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	return sftpClient, nil
}

// writeWithContext writes content in chunks while respecting context
// cancellation.
func writeWithContext(ctx context.Context, dst io.Writer, content []byte) error {
	const chunkSize = 32 * 1024

	for len(content) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n := chunkSize
		if len(content) < n {
			n = len(content)
		}

		if _, err := dst.Write(content[:n]); err != nil {
			return err
		}
		content = content[n:]
	}

	return nil
}
