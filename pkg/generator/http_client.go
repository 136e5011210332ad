package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPClient talks to a generation service over HTTP JSON.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// serviceResponse is the service's wire format: a file set on success or an
// error description on failure.
type serviceResponse struct {
	Files map[string]string `json:"files,omitempty"`
	Error string            `json:"error,omitempty"`
}

// NewHTTPClient creates a generation client. A missing credential is the one
// immediately-fatal configuration error: it aborts before any cycle begins.
func NewHTTPClient(endpoint, apiKey string) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("generation service endpoint is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("generation service credential is required")
	}

	return &HTTPClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}, nil
}

// Generate posts the request and decodes the returned file set.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	log.Debug().
		Int("prompt_len", len(req.Prompt)).
		Int("context_len", len(req.Context)).
		Msg("invoking generation service")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation service call failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation service returned status %d: %s",
			httpResp.StatusCode, truncate(string(respBody), 512))
	}

	var decoded serviceResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("generation service returned unparseable response: %w", err)
	}

	if decoded.Error != "" {
		return nil, fmt.Errorf("generation service reported failure: %s", decoded.Error)
	}

	if len(decoded.Files) == 0 {
		return nil, fmt.Errorf("generation service returned no files")
	}

	log.Info().Int("files", len(decoded.Files)).Msg("generation service returned a file set")

	return &Response{Files: decoded.Files}, nil
}

// truncate shortens s to at most n bytes for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
