package cmd

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/core"
	"github.com/barysiuk/skillsmd/internal/logger"
	"github.com/barysiuk/skillsmd/internal/tui"
)

var addCmd = &cobra.Command{
	Use:     "add <source>",
	Aliases: []string{"a"},
	Short:   "Install skills from a source",
	Long: `Install skills from a git repository, GitHub shorthand or local path.

Sources can be:
  owner/repo                          GitHub shorthand
  owner/repo/path/to/skills           Subdirectory of a GitHub repository
  owner/repo@skill-name               One skill from a repository
  https://github.com/owner/repo/tree/main/skills
  https://gitlab.com/group/repo
  git@host:owner/repo.git             Any git remote
  ./local/path                        Local directory

Skills are copied into .agents/skills/ and symlinked into each selected
agent's skill directory. Pass --copy to copy into every agent directory
instead. Existing files that skillsmd did not install are left alone
unless --force is given.

Running several skillsmd commands against the same project at once is not
supported.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	d, err := newDeps(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	all, _ := cmd.Flags().GetBool("all")
	yes, _ := cmd.Flags().GetBool("yes")
	listOnly, _ := cmd.Flags().GetBool("list")
	fullDepth, _ := cmd.Flags().GetBool("full-depth")
	force, _ := cmd.Flags().GetBool("force")
	useCopy, _ := cmd.Flags().GetBool("copy")
	skillPatterns := listFlag(cmd, "skill")
	agentPatterns := listFlag(cmd, "agent")
	if all {
		skillPatterns = []string{"*"}
		agentPatterns = []string{"*"}
		yes = true
	}

	src, err := core.ResolveSource(args[0])
	if err != nil {
		return err
	}
	if src.SkillFilter != "" {
		skillPatterns = append(skillPatterns, src.SkillFilter)
	}
	logger.G(ctx).WithField("source", src.String()).Debug("resolved source")

	fetcher := core.NewFetcher(d.cfg.FetchAttempts, d.cfg.FetchTimeout)
	res, err := fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}
	defer releaseFetch(res)

	skills, err := core.DiscoverSkills(res.Root, core.DiscoverOptions{
		IncludeInternal: d.cfg.IncludeInternal,
		FullDepth:       fullDepth,
		Subpath:         src.Subpath,
		Agents:          d.agents,
	})
	if err != nil {
		return err
	}

	if listOnly {
		printSkillList(out, skills)
		return nil
	}

	selected, err := selectSkills(skills, skillPatterns, yes)
	if err != nil {
		return cancelled(out, err)
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

	agents, err := selectAgents(d.agents, agentPatterns, scope, root, store.Manifest.LastSelectedAgents, yes)
	if err != nil {
		return cancelled(out, err)
	}

	method := core.MethodSymlink
	if useCopy || d.cfg.Copy {
		method = core.MethodCopy
	}

	plan, err := core.Plan(core.PlanRequest{
		Skills:   selected,
		Agents:   agents,
		Scope:    scope,
		Method:   method,
		Root:     root,
		Manifest: store.Manifest,
	})
	if err != nil {
		return err
	}

	if err := confirm(yes, "Proceed with installation?", planSummary(plan, force)); err != nil {
		return cancelled(out, err)
	}

	result := core.NewInstaller(
		core.WithForce(force),
		core.WithManifest(store),
		core.WithSourceInfo(*src, res.Version),
	).Execute(ctx, plan)

	printInstallResult(out, result)

	if len(result.Succeeded) > 0 {
		store.Manifest.LastSelectedAgents = core.AgentIDs(agents)
		if err := store.Save(); err != nil {
			return err
		}
		printManualRegistration(out, result)
	}

	if result.AllConflicts() {
		return core.ErrAllConflicts
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("installation incomplete: %w", err)
	}
	return nil
}

// selectSkills applies --skill patterns, or asks the user when several
// skills were found and no pattern was given.
func selectSkills(skills []core.Skill, patterns []string, yes bool) ([]core.Skill, error) {
	if len(patterns) > 0 {
		selected := core.FilterSkills(skills, patterns)
		if len(selected) == 0 {
			names := make([]string, len(skills))
			for i, s := range skills {
				names[i] = s.Name
			}
			return nil, fmt.Errorf("%w matching %s; available: %s", core.ErrNoSkillsFound, joinStrings(patterns), joinStrings(names))
		}
		return selected, nil
	}
	if len(skills) == 1 || yes {
		return skills, nil
	}
	if !isInteractive() {
		return nil, fmt.Errorf("found %d skills; choose with --skill or install all with --yes", len(skills))
	}

	items := make([]tui.SelectItem, len(skills))
	for i, s := range skills {
		items[i] = tui.SelectItem{Value: s.Name, Label: s.Name, Hint: s.Description}
	}
	names, err := tui.RunMultiSelect("Select skills to install", items, nil)
	if err != nil {
		return nil, err
	}
	return core.FilterSkills(skills, names), nil
}

// selectAgents applies --agent patterns. Without patterns it asks the user,
// or falls back to the agents detected on this machine.
func selectAgents(all []core.AgentDef, patterns []string, scope core.Scope, root string, last []string, yes bool) ([]core.AgentDef, error) {
	if len(patterns) > 0 {
		agents, err := core.ResolveAgents(all, patterns)
		if err != nil {
			return nil, err
		}
		if hasWildcard(patterns) {
			agents = supporting(agents, scope)
		}
		if len(agents) == 0 {
			return nil, fmt.Errorf("no selected agent supports %s installation", scope)
		}
		return agents, nil
	}

	candidates := supporting(all, scope)
	detected := supporting(core.DetectAgents(all, root), scope)

	if yes || !isInteractive() {
		if len(detected) == 0 {
			return nil, errors.New("no agents detected; choose agents with --agent (for example --agent claude-code)")
		}
		return detected, nil
	}

	preselected := last
	if len(preselected) == 0 {
		preselected = core.AgentIDs(detected)
	}
	items := make([]tui.SelectItem, len(candidates))
	for i, a := range candidates {
		dir := a.ProjectDir
		if scope == core.ScopeGlobal {
			dir = a.GlobalDir
		}
		items[i] = tui.SelectItem{Value: a.ID, Label: a.DisplayName, Hint: "(" + dir + ")"}
	}
	ids, err := tui.RunMultiSelect("Select agents to install to", items, preselected)
	if err != nil {
		return nil, err
	}
	return core.ResolveAgents(all, ids)
}

func hasWildcard(patterns []string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		return strings.ContainsAny(p, "*?[{")
	})
}

// supporting returns the agents that can be installed into scope.
func supporting(agents []core.AgentDef, scope core.Scope) []core.AgentDef {
	var out []core.AgentDef
	for _, a := range agents {
		if a.SupportsScope(scope) {
			out = append(out, a)
		}
	}
	return out
}

// cancelled turns a prompt cancellation into a clean exit.
func cancelled(w io.Writer, err error) error {
	if errors.Is(err, tui.ErrCancelled) {
		fmt.Fprintln(w, "Cancelled.")
		return nil
	}
	return err
}

func printSkillList(w io.Writer, skills []core.Skill) {
	width := terminalWidth()
	fmt.Fprintf(w, "Found %d skill(s):\n\n", len(skills))
	for _, s := range skills {
		fmt.Fprintf(w, "  %s\n", tui.Bold(s.Name))
		if s.Description != "" {
			fmt.Fprintf(w, "    %s\n", truncate(tui.Muted(s.Description), width-4))
		}
	}
	fmt.Fprintln(w, "\nInstall with --skill <name>, or --skill '*' for all.")
}

// planSummary describes the plan for the confirmation prompt.
func planSummary(plan *core.InstallPlan, force bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scope: %s, method: %s\n", plan.Scope, plan.Method)
	for _, op := range plan.Operations {
		t := op.Target
		switch op.Action {
		case core.ActionSkip:
			fmt.Fprintf(&b, "  %s -> %s (shared with %s)\n", t.Skill.Name, t.AgentID, op.SharesWith)
		case core.ActionConflictForeign:
			if force {
				fmt.Fprintf(&b, "  %s -> %s (overwrite %s)\n", t.Skill.Name, t.AgentID, t.Destination)
			} else {
				fmt.Fprintf(&b, "  %s -> %s (conflict: %s)\n", t.Skill.Name, t.AgentID, op.Conflict)
			}
		default:
			fmt.Fprintf(&b, "  %s -> %s (%s)\n", t.Skill.Name, t.AgentID, op.Action)
		}
	}
	if n := len(plan.Conflicts()); n > 0 && !force {
		fmt.Fprintf(&b, "%d target(s) hold files skillsmd did not install and will be left alone; use --force to overwrite.\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func printInstallResult(w io.Writer, result *core.ExecutionResult) {
	for _, r := range result.Succeeded {
		t := r.Op.Target
		fmt.Fprintf(w, "%s %s -> %s (%s)\n", tui.Success("✓"), t.Skill.Name, t.AgentID, r.Method)
		fmt.Fprintf(w, "  Path: %s\n", t.Destination)
	}
	for _, r := range result.Skipped {
		t := r.Op.Target
		fmt.Fprintf(w, "%s %s -> %s (shares destination with %s)\n", tui.Muted("-"), t.Skill.Name, t.AgentID, r.Op.SharesWith)
	}
	for _, r := range result.Failed {
		t := r.Op.Target
		fmt.Fprintf(w, "%s %s -> %s: %v\n", tui.Failure("✗"), t.Skill.Name, t.AgentID, r.Err)
	}
	fmt.Fprintf(w, "\nInstalled %d, skipped %d, failed %d.\n", len(result.Succeeded), len(result.Skipped), len(result.Failed))
}

// printManualRegistration prints follow-up steps for agents that do not
// pick up skills from their directory on their own.
func printManualRegistration(w io.Writer, result *core.ExecutionResult) {
	seen := make(map[string]bool)
	for _, r := range result.Succeeded {
		a := r.Op.Target.Agent
		if !a.HasCapability(core.CapabilityManualRegistration) || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		fmt.Fprintf(w, "\n%s %s needs the skills registered manually.\n", tui.Warning("Note:"), a.DisplayName)
		fmt.Fprintln(w, `  Add them to the "resources" list in .kiro/agents/<agent>.json, for example:`)
		fmt.Fprintln(w, `  "resources": ["skill://.kiro/skills/*/SKILL.md"]`)
	}
}

func init() {
	addCmd.Flags().BoolP("global", "g", false, "Install into the user's home instead of the current project")
	addCmd.Flags().StringArrayP("agent", "a", nil, "Agent to install to; repeatable, '*' for all")
	addCmd.Flags().StringArrayP("skill", "s", nil, "Skill to install; repeatable, '*' for all")
	addCmd.Flags().BoolP("list", "l", false, "List the skills in the source without installing")
	addCmd.Flags().BoolP("yes", "y", false, "Skip prompts and confirmation")
	addCmd.Flags().Bool("all", false, "Install every skill to every agent without prompts (same as --skill '*' --agent '*' -y)")
	addCmd.Flags().Bool("copy", false, "Copy skills into each agent directory instead of symlinking")
	addCmd.Flags().Bool("full-depth", false, "Search the whole source even when its root is a skill")
	addCmd.Flags().Bool("force", false, "Overwrite files that skillsmd did not install")
	rootCmd.AddCommand(addCmd)
}
