package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/core"
	"github.com/barysiuk/skillsmd/internal/tui"
)

var findCmd = &cobra.Command{
	Use:     "find [query]",
	Aliases: []string{"search"},
	Short:   "Search the public skill index",
	Long: `Search the skill index for skills matching a query and print the
command that installs each result. The index URL is the search_url setting.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("a search query is required, for example: skillsmd find pdf")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		client := core.NewSearchClient(d.cfg.SearchURL)
		client.Attempts = d.cfg.FetchAttempts
		results, err := client.Search(commandContext(cmd), query, limit)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Fprintf(out, "No skills found for %q.\n", query)
			return nil
		}

		width := terminalWidth()
		for _, r := range results {
			line := tui.Bold(r.Name)
			if r.Source != "" {
				line += " " + tui.Muted(r.Source)
			}
			if r.Installs > 0 {
				line += " " + tui.Muted(fmt.Sprintf("(%d installs)", r.Installs))
			}
			fmt.Fprintln(out, truncate(line, width))
			fmt.Fprintln(out, truncate("  skillsmd add "+r.InstallSource(), width))
		}
		return nil
	},
}

func init() {
	findCmd.Flags().Int("limit", 10, "Maximum number of results")
	rootCmd.AddCommand(findCmd)
}
