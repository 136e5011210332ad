// Package backends abstracts where phase commands physically execute. The
// build pipeline drives a Backend without knowing whether commands run in a
// local subprocess or over an SSH session on a remote host.
package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	transport "github.com/infrapilot/infrapilot/pkg/transports/ssh"
)

// Backend executes commands in a working directory and moves files in and out
// of it. Exactly one backend instance mutates the working directory at a time.
type Backend interface {
	// Bootstrap prepares the execution environment once, before any phase
	// command runs. For the local variant this ensures the working directory
	// exists; the remote variant additionally clones or updates the project
	// source, installs declared dependencies, and exports configured
	// environment variables.
	Bootstrap(ctx context.Context) error

	// Execute runs a command synchronously in the working directory.
	// A non-zero exit is reported in the result; the error return is
	// reserved for environment and transport failures.
	Execute(ctx context.Context, command string) (*Result, error)

	// DeliverFiles writes a complete generated file set into the working
	// directory, creating parent paths as needed. Partial delivery is never
	// attempted; callers validate the set first.
	DeliverFiles(ctx context.Context, files map[string]string) error

	// CollectOutputs probes a fixed set of well-known output locations and
	// returns whichever exist as a mapping of artifact name to content or
	// listing.
	CollectOutputs(ctx context.Context) (map[string]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Result represents the outcome of one command execution.
type Result struct {
	// Command is the command string that was executed
	Command string

	// Output is the combined stdout and stderr
	Output string

	// ExitCode is the command's exit code (0 on success)
	ExitCode int

	// Duration is the total execution time
	Duration time.Duration
}

// Success returns true if the command exited zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// outputLocations is the fixed set of well-known files probed after a deploy.
var outputLocations = []string{
	"outputs.json",
	"cdktf-outputs.json",
	"terraform.tfstate",
}

// stacksDir is listed (not read) when present.
const stacksDir = "cdktf.out/stacks"

// IsConnectivity reports whether err is a transport-level failure talking to
// the execution target, as opposed to a command's own failure.
func IsConnectivity(err error) bool {
	var te *transport.TransportError
	return errors.As(err, &te)
}

// recordArtifact folds one probed artifact into the outputs mapping. Output
// files contribute their keys directly so deployment outputs keep their
// original names; everything else is stored raw under the artifact name.
func recordArtifact(outputs map[string]string, name string, content []byte) {
	if strings.HasSuffix(name, "outputs.json") {
		mergeOutputs(outputs, name, content)
		return
	}
	outputs[name] = string(content)
}

// mergeOutputs merges a flat JSON object's keys into the outputs mapping,
// falling back to the artifact name when the content is not an object.
func mergeOutputs(outputs map[string]string, name string, content []byte) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(content, &parsed); err == nil && len(parsed) > 0 {
		for key, value := range parsed {
			switch v := value.(type) {
			case string:
				outputs[key] = v
			default:
				encoded, err := json.Marshal(v)
				if err != nil {
					outputs[key] = fmt.Sprintf("%v", v)
					continue
				}
				outputs[key] = string(encoded)
			}
		}
		return
	}

	outputs[name] = string(content)
}
