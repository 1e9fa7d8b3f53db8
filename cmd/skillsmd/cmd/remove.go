package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/core"
	"github.com/barysiuk/skillsmd/internal/tui"
)

var removeCmd = &cobra.Command{
	Use:     "remove [skills...]",
	Aliases: []string{"rm", "uninstall"},
	Short:   "Remove installed skills",
	Long: `Remove skills recorded in .agents/.skill-lock.json.

Agent links and copies are deleted, and the shared copy in .agents/skills/
is deleted once no agent uses it anymore. Files that skillsmd did not
install are never touched.

  skillsmd remove pdf                 Remove pdf from every agent
  skillsmd remove pdf -a cursor       Remove pdf from Cursor only
  skillsmd remove -a cursor           Remove every skill from Cursor
  skillsmd remove --all               Remove every skill`,
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	all, _ := cmd.Flags().GetBool("all")
	yes, _ := cmd.Flags().GetBool("yes")
	skills := append(slices.Clone(args), listFlag(cmd, "skill")...)
	agents := listFlag(cmd, "agent")
	if all {
		skills = []string{"*"}
		agents = []string{"*"}
		yes = true
	}

	scope := scopeFromFlag(cmd)
	root, err := scopeRoot(scope)
	if err != nil {
		return err
	}
	store, err := core.LoadManifest(root)
	if err != nil {
		return err
	}

	installed := store.Manifest.List(core.ManifestFilter{Scope: scope})
	if len(installed) == 0 {
		fmt.Fprintln(out, "No skills installed.")
		return nil
	}

	// --agent alone removes every skill from those agents.
	if len(skills) == 0 && len(agents) == 0 {
		if !isInteractive() {
			return fmt.Errorf("no skills given; name the skills or agents to remove from, or use --all")
		}
		names := installedSkillNames(installed)
		items := make([]tui.SelectItem, len(names))
		for i, n := range names {
			items[i] = tui.SelectItem{Value: n, Label: n}
		}
		skills, err = tui.RunMultiSelect("Select skills to remove", items, nil)
		if err != nil {
			return cancelled(out, err)
		}
	}

	filter := core.ManifestFilter{Skills: skills, Agents: agents, Scope: scope}
	matches := store.Manifest.List(filter)
	if len(matches) == 0 {
		if len(skills) == 0 {
			fmt.Fprintf(out, "No skills installed for %s.\n", joinStrings(agents))
			return nil
		}
		fmt.Fprintf(out, "No installed skills match %s.\n", joinStrings(skills))
		return nil
	}

	var lines []string
	for _, e := range matches {
		lines = append(lines, fmt.Sprintf("  %s (%s)", e.SkillName, e.AgentID))
	}
	title := fmt.Sprintf("Remove %d installation(s)?", len(matches))
	if err := confirm(yes, title, strings.Join(lines, "\n")); err != nil {
		return cancelled(out, err)
	}

	report, err := core.NewRemover(store).Remove(filter)
	if report != nil {
		for _, e := range report.Removed {
			fmt.Fprintf(out, "Removed: %s (%s)\n", e.SkillName, e.AgentID)
		}
		fmt.Fprintf(out, "\nRemoved %d installation(s).\n", len(report.Removed))
	}
	return err
}

// installedSkillNames returns the distinct skill names of entries, sorted.
func installedSkillNames(entries []core.ManifestEntry) []string {
	var names []string
	for _, e := range entries {
		if !slices.Contains(names, e.SkillName) {
			names = append(names, e.SkillName)
		}
	}
	slices.Sort(names)
	return names
}

func init() {
	removeCmd.Flags().BoolP("global", "g", false, "Remove from the user's home instead of the current project")
	removeCmd.Flags().StringArrayP("agent", "a", nil, "Only remove from this agent; repeatable, '*' for all")
	removeCmd.Flags().StringArrayP("skill", "s", nil, "Skill to remove; repeatable, '*' for all")
	removeCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	removeCmd.Flags().Bool("all", false, "Remove every installed skill without confirmation")
	rootCmd.AddCommand(removeCmd)
}
