package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/core"
	"github.com/barysiuk/skillsmd/internal/tui"
)

var checkCmd = &cobra.Command{
	Use:   "check [skills...]",
	Short: "Check installed skills for updates",
	Long: `Fetch the source of every installed skill, or only the named ones, and
report whether it is current, stale or no longer available. Each source is
fetched once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, store, err := loadScopeState(cmd)
		if err != nil || store == nil {
			return err
		}

		results, err := newChecker(d).CheckFiltered(commandContext(cmd), store.Manifest, core.ManifestFilter{Skills: args, Scope: scopeFromFlag(cmd)})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printCheckResults(out, results)

		stale := 0
		for _, r := range results {
			if r.Status == core.StatusStale {
				stale++
			}
		}
		if stale > 0 {
			fmt.Fprintf(out, "\n%d update(s) available. Run 'skillsmd update' to install them.\n", stale)
		} else {
			fmt.Fprintln(out, "\nAll skills are up to date.")
		}
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update [skills...]",
	Aliases: []string{"upgrade"},
	Short:   "Update installed skills to the latest version",
	Long: `Reinstall every stale skill, or only the named ones, from its source,
keeping the agent, scope and install method it was installed with.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, store, err := loadScopeState(cmd)
		if err != nil || store == nil {
			return err
		}

		report, err := newChecker(d).Update(commandContext(cmd), store, core.UpdateOptions{
			Filter: core.ManifestFilter{Skills: args, Scope: scopeFromFlag(cmd)},
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range report.Updated {
			fmt.Fprintf(out, "%s Updated %s (%s)\n", tui.Success("✓"), r.SkillName, r.AgentID)
		}
		for _, r := range report.Results {
			if r.Status == core.StatusSourceUnavailable {
				fmt.Fprintf(out, "%s Skipped %s (%s): %s\n", tui.Warning("!"), r.SkillName, r.AgentID, r.Reason)
			}
		}
		if len(report.Updated) == 0 && report.Err() == nil {
			fmt.Fprintln(out, "All skills are up to date.")
		} else {
			fmt.Fprintf(out, "\nUpdated %d installation(s).\n", len(report.Updated))
		}
		if err := report.Err(); err != nil {
			return fmt.Errorf("updating skills: %w", err)
		}
		return nil
	},
}

func newChecker(d *deps) *core.Checker {
	checker := core.NewChecker(core.NewFetcher(d.cfg.FetchAttempts, d.cfg.FetchTimeout))
	checker.Agents = d.agents
	return checker
}

// loadScopeState loads dependencies and the manifest of the selected scope.
// It returns a nil store after telling the user when nothing is installed.
func loadScopeState(cmd *cobra.Command) (*deps, *core.ManifestStore, error) {
	d, err := newDeps(cmd)
	if err != nil {
		return nil, nil, err
	}
	scope := scopeFromFlag(cmd)
	root, err := scopeRoot(scope)
	if err != nil {
		return nil, nil, err
	}
	store, err := core.LoadManifest(root)
	if err != nil {
		return nil, nil, err
	}
	// A project rooted at $HOME shares its manifest with the global scope.
	if len(store.Manifest.List(core.ManifestFilter{Scope: scope})) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No skills installed.")
		return d, nil, nil
	}
	return d, store, nil
}

func printCheckResults(w io.Writer, results []core.CheckResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Skill\tAgent\tStatus\tInstalled\tLatest")
	for _, r := range results {
		latest := shortVersion(r.LatestVersion)
		if r.Status == core.StatusSourceUnavailable {
			latest = r.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.SkillName, r.AgentID, r.Status, shortVersion(r.InstalledVersion), latest)
	}
	_ = tw.Flush()
}

func init() {
	checkCmd.Flags().BoolP("global", "g", false, "Check skills installed in the user's home")
	updateCmd.Flags().BoolP("global", "g", false, "Update skills installed in the user's home")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
}
