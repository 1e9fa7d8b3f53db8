package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/core"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed skills",
	Long:    `List the skills recorded in .agents/.skill-lock.json for the current project, or the home directory with --global.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		agents := listFlag(cmd, "agent")

		scope := scopeFromFlag(cmd)
		root, err := scopeRoot(scope)
		if err != nil {
			return err
		}
		store, err := core.LoadManifest(root)
		if err != nil {
			return err
		}

		entries := store.Manifest.List(core.ManifestFilter{Agents: agents, Scope: scope})

		if jsonOutput {
			if entries == nil {
				entries = []core.ManifestEntry{}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No skills installed.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Skill\tAgent\tMethod\tVersion\tSource")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.SkillName, e.AgentID, e.Method, shortVersion(e.SourceVersion), e.Source.String())
		}
		_ = w.Flush()
		return nil
	},
}

// shortVersion abbreviates commit hashes and content hashes for tables.
func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}

func init() {
	listCmd.Flags().BoolP("global", "g", false, "List skills installed in the user's home")
	listCmd.Flags().StringArrayP("agent", "a", nil, "Only list skills for this agent; repeatable")
	listCmd.Flags().Bool("json", false, "Output as JSON for scripting")
	rootCmd.AddCommand(listCmd)
}
