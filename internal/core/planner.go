package core

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
)

// PlanRequest holds the inputs of one planning pass.
type PlanRequest struct {
	Skills   []Skill
	Agents   []AgentDef
	Scope    Scope
	Method   Method
	Root     string    // Scope root: project directory or home
	Manifest *Manifest // Existing state; nil means nothing is installed
}

// Plan builds the install plan for every (agent, skill) pair.
//
// Operations are ordered by agent id, then skill name. The planner only
// classifies destinations; whether conflicting operations are executed is
// decided by the installer's force option.
func Plan(req PlanRequest) (*InstallPlan, error) {
	if req.Root == "" {
		return nil, fmt.Errorf("planning install: scope root is empty")
	}
	method := req.Method
	if method == "" {
		method = MethodSymlink
	}
	manifest := req.Manifest
	if manifest == nil {
		manifest = &Manifest{}
	}

	agents := slices.Clone(req.Agents)
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	skills := slices.Clone(req.Skills)
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })

	plan := &InstallPlan{
		Scope:      req.Scope,
		Method:     method,
		Root:       req.Root,
		Operations: make([]Operation, 0, len(agents)*len(skills)),
	}

	claimed := make(map[string]string)
	for _, agent := range agents {
		if !agent.SupportsScope(req.Scope) {
			return nil, &ValidationError{Message: fmt.Sprintf("agent %s does not support %s installation", agent.ID, req.Scope)}
		}
		dir, err := agent.SkillsDir(req.Scope, req.Root)
		if err != nil {
			return nil, err
		}

		for _, skill := range skills {
			dest := filepath.Join(dir, skill.Name)
			op := Operation{
				Target: InstallTarget{
					Skill:       skill,
					Agent:       agent,
					AgentID:     agent.ID,
					Scope:       req.Scope,
					Destination: dest,
				},
				Method: method,
			}
			if method == MethodSymlink {
				op.CanonicalPath = filepath.Join(canonicalDir(req.Root), skill.Name)
			}

			if owner, ok := claimed[dest]; ok {
				op.Action = ActionSkip
				op.SharesWith = owner
			} else {
				claimed[dest] = agent.ID
				op.Action, op.Conflict = classifyDestination(manifest, op)
			}
			plan.Operations = append(plan.Operations, op)
		}
	}

	return plan, nil
}

// classifyDestination decides between create, overwrite and conflict-foreign.
// Ownership comes from the manifest only; an existing path the manifest does
// not account for is always foreign.
func classifyDestination(m *Manifest, op Operation) (Action, string) {
	t := op.Target

	if op.Method == MethodSymlink && !samePath(op.CanonicalPath, t.Destination) &&
		pathExists(op.CanonicalPath) && !m.owns(op.CanonicalPath, t.Skill.Name, t.Scope, MethodSymlink) {
		return ActionConflictForeign, fmt.Sprintf("canonical store %s exists and was not installed by skillsmd", op.CanonicalPath)
	}

	if !pathExists(t.Destination) {
		return ActionCreate, ""
	}

	if m.owns(t.Destination, t.Skill.Name, t.Scope, op.Method) {
		return ActionOverwrite, ""
	}
	if m.owns(t.Destination, t.Skill.Name, t.Scope, otherMethod(op.Method)) {
		return ActionConflictForeign, fmt.Sprintf("destination was installed by skillsmd as %s, not %s", otherMethod(op.Method), op.Method)
	}
	return ActionConflictForeign, "destination exists and was not installed by skillsmd"
}

func otherMethod(m Method) Method {
	if m == MethodSymlink {
		return MethodCopy
	}
	return MethodSymlink
}
