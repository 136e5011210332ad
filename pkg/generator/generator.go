// Package generator defines the contract with the external code-generation
// service. The service's internal behavior is opaque; it accepts a prompt and
// optional context and returns a named-file set or a failure.
package generator

import "context"

// Request is what the generation service consumes.
type Request struct {
	// Prompt is the natural-language request, possibly with corrective
	// feedback appended from earlier cycles
	Prompt string `json:"prompt"`

	// Context is optional accumulated context
	Context string `json:"context,omitempty"`
}

// Response is the strictly-typed result of a generation call: a mapping of
// relative path to full text content. Any non-conforming service response is
// a generation failure; no best-effort text scraping happens here.
type Response struct {
	// Files maps relative paths to file contents
	Files map[string]string `json:"files"`
}

// Service generates project file sets from prompts.
type Service interface {
	// Generate invokes the service with the given request. The calling
	// goroutine blocks until the service responds.
	Generate(ctx context.Context, req Request) (*Response, error)
}
