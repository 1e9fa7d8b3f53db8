package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/core/skillmd"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a SKILL.md template",
	Long: `Create a new skill. With a name, writes <name>/SKILL.md; without one,
writes SKILL.md in the current directory using the directory name.
Existing files are never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		name := filepath.Base(cwd)
		dir := cwd
		if len(args) == 1 {
			name = args[0]
			dir = filepath.Join(cwd, name)
		}

		path := filepath.Join(dir, skillmd.FileName)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating skill directory: %w", err)
		}
		data := skillmd.Template(name, "")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", skillmd.FileName, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created: %s\n", path)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintf(out, "  1. Edit %s to describe your skill\n", path)
		fmt.Fprintf(out, "  2. Install it with: skillsmd add %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
