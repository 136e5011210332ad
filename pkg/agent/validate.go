package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// requiredFiles are the artifacts every generated project must contain
// before the pipeline is worth running.
var requiredFiles = []string{"main.ts", "cdktf.json", "package.json"}

// ValidateFiles checks a generated file set for structural soundness. It
// rejects empty sets, missing required artifacts, TypeScript sources with no
// recognizable program structure, and config files that do not parse. The
// returned error is always a validation failure.
func ValidateFiles(files map[string]string) error {
	if len(files) == 0 {
		return NewValidationError("generation returned no files", nil)
	}

	var missing []string
	for _, name := range requiredFiles {
		if _, ok := files[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return NewValidationError(fmt.Sprintf("missing required files: %s", strings.Join(missing, ", ")), nil)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := files[name]
		switch {
		case strings.HasSuffix(name, ".ts"):
			if err := validateTypeScript(name, content); err != nil {
				return err
			}
		case strings.HasSuffix(name, ".json"):
			var v any
			if err := json.Unmarshal([]byte(content), &v); err != nil {
				return NewValidationError(fmt.Sprintf("%s is not valid JSON", name), err)
			}
		case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
			var v any
			if err := yaml.Unmarshal([]byte(content), &v); err != nil {
				return NewValidationError(fmt.Sprintf("%s is not valid YAML", name), err)
			}
		}
	}

	return nil
}

// typescriptMarkers are tokens at least one of which a plausible TypeScript
// entry point contains.
var typescriptMarkers = []string{"import", "export", "require", "class", "function", "const", "new "}

func validateTypeScript(name, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return NewValidationError(fmt.Sprintf("%s is empty", name), nil)
	}
	for _, marker := range typescriptMarkers {
		if strings.Contains(trimmed, marker) {
			return nil
		}
	}
	return NewValidationError(fmt.Sprintf("%s does not look like a TypeScript source file", name), nil)
}
