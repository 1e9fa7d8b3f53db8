package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/barysiuk/skillsmd/internal/core"
	"github.com/barysiuk/skillsmd/internal/logger"
	"github.com/barysiuk/skillsmd/internal/tui"
)

const defaultTermWidth = 80

// PrintError writes err to w in the CLI's error format, followed by any
// hints the error carries.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	if fe, ok := core.AsFetchError(err); ok && len(fe.Hints) > 0 {
		fmt.Fprintf(w, "\n%s:\n", fe.Kind)
		for _, h := range fe.Hints {
			fmt.Fprintf(w, "  - %s\n", h)
		}
	}
	if errors.Is(err, core.ErrAllConflicts) {
		fmt.Fprintln(w, "Hint: use --force to overwrite files that skillsmd did not install.")
	}
}

// isInteractive reports whether prompts can be shown.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// terminalWidth returns the width of stdout, or a default when it is not a terminal.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultTermWidth
	}
	return w
}

// truncate shortens s to width cells, keeping ANSI sequences intact.
func truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}

// joinStrings concatenates string slices with ", " separator.
func joinStrings(ss []string) string {
	return strings.Join(ss, ", ")
}

// scopeFromFlag returns the scope selected by --global.
func scopeFromFlag(cmd *cobra.Command) core.Scope {
	global, _ := cmd.Flags().GetBool("global")
	if global {
		return core.ScopeGlobal
	}
	return core.ScopeProject
}

// scopeRoot returns the directory holding the manifest for scope: the
// current directory for project scope and the home directory for global.
func scopeRoot(scope core.Scope) (string, error) {
	if scope == core.ScopeGlobal {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return home, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

// listFlag reads a repeatable string flag, also splitting comma-separated values.
func listFlag(cmd *cobra.Command, name string) []string {
	raw, _ := cmd.Flags().GetStringArray(name)
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// confirm asks the user to proceed. With --yes it returns true without
// asking; without a terminal it fails.
func confirm(yes bool, title, body string) error {
	if yes {
		return nil
	}
	if !isInteractive() {
		return errors.New("confirmation required; use --yes to proceed without a terminal")
	}
	ok, err := tui.RunConfirm(title, body)
	if err != nil {
		return err
	}
	if !ok {
		return tui.ErrCancelled
	}
	return nil
}

// commandContext returns the command's context with the global logger attached.
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logger.WithLogger(ctx, logger.L.WithField("command", cmd.Name()))
}

// releaseFetch removes any temporary checkout behind res.
func releaseFetch(res *core.FetchResult) {
	if res != nil && res.Cleanup != nil {
		res.Cleanup()
	}
}
