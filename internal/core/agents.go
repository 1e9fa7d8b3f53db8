package core

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Agent capabilities.
const (
	// CapabilityGlobal marks agents that have a global-scope skills directory.
	CapabilityGlobal = "global"
	// CapabilityManualRegistration marks agents that need a manual step after install.
	CapabilityManualRegistration = "manual-registration"
)

//go:embed agents.json
var embeddedAgentsJSON []byte

var (
	agentsOnce   sync.Once
	agentsCached []AgentDef
	agentsErr    error
)

// LoadAgents parses the embedded agent definitions.
// The registry is read-only; callers get their own copy of the slice.
func LoadAgents() ([]AgentDef, error) {
	agentsOnce.Do(func() {
		if err := json.Unmarshal(embeddedAgentsJSON, &agentsCached); err != nil {
			agentsErr = fmt.Errorf("parsing agent definitions: %w", err)
		}
	})
	if agentsErr != nil {
		return nil, agentsErr
	}
	return slices.Clone(agentsCached), nil
}

// HasCapability reports whether the agent declares the given capability.
func (a AgentDef) HasCapability(c string) bool {
	return slices.Contains(a.Capabilities, c)
}

// SupportsScope reports whether the agent can be installed into the scope.
func (a AgentDef) SupportsScope(scope Scope) bool {
	if scope == ScopeGlobal {
		return a.GlobalDir != ""
	}
	return a.ProjectDir != ""
}

// SkillsDir resolves the agent's skill directory for a scope.
// Project directories are joined onto root; global directories are expanded
// against the user's home.
func (a AgentDef) SkillsDir(scope Scope, root string) (string, error) {
	switch scope {
	case ScopeProject:
		return filepath.Join(root, filepath.FromSlash(a.ProjectDir)), nil
	case ScopeGlobal:
		if a.GlobalDir == "" {
			return "", &ValidationError{Message: fmt.Sprintf("agent %s does not support global installation", a.ID)}
		}
		return filepath.Clean(expandPath(a.GlobalDir)), nil
	default:
		return "", fmt.Errorf("unknown scope %q", scope)
	}
}

// AgentByID looks up an agent by id.
func AgentByID(agents []AgentDef, id string) (AgentDef, bool) {
	for _, a := range agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentDef{}, false
}

// ResolveAgents returns the agents matching the given ids.
// "*" selects every agent and glob patterns such as "trae*" are matched
// against ids. Unknown ids produce an error wrapping ErrUnknownAgent.
// The result keeps registry order and contains no duplicates.
func ResolveAgents(agents []AgentDef, patterns []string) ([]AgentDef, error) {
	selected := make(map[string]bool)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		matched := false
		for _, a := range agents {
			ok := p == "*" || a.ID == p
			if !ok && strings.ContainsAny(p, "*?[{") {
				ok, _ = doublestar.Match(p, a.ID)
			}
			if ok {
				selected[a.ID] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w %q; available: %s", ErrUnknownAgent, p, strings.Join(AgentIDs(agents), ", "))
		}
	}

	var resolved []AgentDef
	for _, a := range agents {
		if selected[a.ID] {
			resolved = append(resolved, a)
		}
	}
	return resolved, nil
}

// AgentIDs returns the ids of the given agents.
func AgentIDs(agents []AgentDef) []string {
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids
}

// DetectAgents returns the agents that appear to be installed.
// Relative detect paths are checked inside projectRoot, the rest after
// ~ and environment expansion.
func DetectAgents(agents []AgentDef, projectRoot string) []AgentDef {
	var detected []AgentDef
	for _, agent := range agents {
		if isAgentDetected(agent, projectRoot) {
			detected = append(detected, agent)
		}
	}
	return detected
}

func isAgentDetected(agent AgentDef, projectRoot string) bool {
	for _, p := range agent.DetectPaths {
		expanded := expandPath(p)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(projectRoot, expanded)
		}
		if pathExists(expanded) {
			return true
		}
	}
	return false
}

// agentProjectDirs returns the distinct project skill directories in registry order.
func agentProjectDirs(agents []AgentDef) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, a := range agents {
		if a.ProjectDir == "" || seen[a.ProjectDir] {
			continue
		}
		seen[a.ProjectDir] = true
		dirs = append(dirs, a.ProjectDir)
	}
	return dirs
}

// canonicalDir returns the canonical store directory for a scope root.
func canonicalDir(scopeRoot string) string {
	return filepath.Join(scopeRoot, filepath.FromSlash(canonicalSkillsDir))
}
