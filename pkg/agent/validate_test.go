package agent

import (
	"strings"
	"testing"
)

func TestValidateFiles_Accepts(t *testing.T) {
	files := map[string]string{
		"main.ts":      `import { App, TerraformStack } from "cdktf";`,
		"cdktf.json":   `{"language": "typescript"}`,
		"package.json": `{"name": "stack"}`,
		"config.yaml":  "region: eu-west-1\n",
	}

	if err := ValidateFiles(files); err != nil {
		t.Errorf("expected valid file set, got %v", err)
	}
}

func TestValidateFiles_Rejects(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"main.ts":      `import { App } from "cdktf";`,
			"cdktf.json":   `{"language": "typescript"}`,
			"package.json": `{"name": "stack"}`,
		}
	}

	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantMsg string
	}{
		{
			name:    "empty set",
			mutate:  func(f map[string]string) { clear(f) },
			wantMsg: "no files",
		},
		{
			name:    "missing entry point",
			mutate:  func(f map[string]string) { delete(f, "main.ts") },
			wantMsg: "main.ts",
		},
		{
			name:    "missing toolchain config",
			mutate:  func(f map[string]string) { delete(f, "cdktf.json") },
			wantMsg: "cdktf.json",
		},
		{
			name:    "missing package manifest",
			mutate:  func(f map[string]string) { delete(f, "package.json") },
			wantMsg: "package.json",
		},
		{
			name:    "empty typescript source",
			mutate:  func(f map[string]string) { f["main.ts"] = "   \n" },
			wantMsg: "main.ts is empty",
		},
		{
			name:    "implausible typescript source",
			mutate:  func(f map[string]string) { f["main.ts"] = "hello world" },
			wantMsg: "does not look like",
		},
		{
			name:    "malformed json",
			mutate:  func(f map[string]string) { f["cdktf.json"] = "{not json" },
			wantMsg: "not valid JSON",
		},
		{
			name:    "malformed yaml",
			mutate:  func(f map[string]string) { f["values.yaml"] = "a: [unclosed" },
			wantMsg: "not valid YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := base()
			tt.mutate(files)

			err := ValidateFiles(files)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !IsValidationFailure(err) {
				t.Errorf("expected a validation failure, got class %s", ClassOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateFiles_ReportsAllMissing(t *testing.T) {
	err := ValidateFiles(map[string]string{"readme.md": "hi"})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	for _, name := range []string{"cdktf.json", "main.ts", "package.json"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err.Error(), name)
		}
	}
}
