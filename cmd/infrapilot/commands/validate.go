package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/pkg/agent"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate a project directory or the configuration",
		Long: `Validate checks a CDKTF project directory the same way the agent checks
generated file sets: required files must exist, TypeScript sources must have
recognizable program structure, and JSON/YAML files must parse. With no
directory argument it validates the configuration file instead.`,
		Example: `  # Validate the configuration
  infrapilot -c infrapilot.yaml validate

  # Validate a project directory
  infrapilot validate ./workspace`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return validateConfig()
			}
			return validateDir(args[0])
		},
	}

	return cmd
}

func validateConfig() error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	fmt.Println("Configuration is valid")
	return nil
}

// validateDir loads the directory's files into memory and applies the same
// structural checks used on generated file sets.
func validateDir(dir string) error {
	files := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip dependency and synthesis output trees
			switch d.Name() {
			case "node_modules", "cdktf.out", ".git":
				if path != dir {
					return filepath.SkipDir
				}
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read project directory: %w", err)
	}

	if err := agent.ValidateFiles(files); err != nil {
		return err
	}

	fmt.Printf("Project in %s is valid (%d files)\n", dir, len(files))
	return nil
}
