// Package core provides the business logic for skillsmd.
// It has zero UI dependencies and is independently testable.
package core

import (
	"strings"
	"time"
)

// Provider identifies where a skill source is fetched from.
type Provider string

const (
	ProviderGitHub     Provider = "github"
	ProviderGitLab     Provider = "gitlab"
	ProviderGenericGit Provider = "generic-git"
	ProviderLocal      Provider = "local"
)

// SourceDescriptor is the canonical, fetchable form of a user-supplied source string.
type SourceDescriptor struct {
	Provider Provider `json:"provider"`
	Location string   `json:"location"`          // Clone URL or absolute filesystem path
	Ref      string   `json:"ref,omitempty"`     // Branch or tag
	Subpath  string   `json:"subpath,omitempty"` // Slash-separated, relative, never escapes the root

	// SkillFilter comes from the owner/repo@skill form. It is not persisted.
	SkillFilter string `json:"-"`
}

// IsRemote reports whether the source needs a network fetch.
func (d SourceDescriptor) IsRemote() bool {
	return d.Provider != ProviderLocal
}

// String returns a stable human-readable form, also used as a grouping key.
func (d SourceDescriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Location)
	if d.Ref != "" {
		b.WriteString("#")
		b.WriteString(d.Ref)
	}
	if d.Subpath != "" {
		b.WriteString("//")
		b.WriteString(d.Subpath)
	}
	return b.String()
}

// Skill is a validated skill package found in a source tree.
type Skill struct {
	Name           string         `json:"name"`        // Sanitized install name
	DisplayName    string         `json:"displayName"` // Frontmatter name as written
	Description    string         `json:"description"`
	SourcePath     string         `json:"sourcePath"` // Directory containing SKILL.md
	Internal       bool           `json:"internal,omitempty"`
	RawFrontmatter map[string]any `json:"-"`
}

// Scope is the installation locality.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Method is how a skill is materialized at an agent destination.
type Method string

const (
	MethodSymlink Method = "symlink"
	MethodCopy    Method = "copy"
)

// Action is what the installer will do for one plan operation.
type Action string

const (
	ActionCreate          Action = "create"
	ActionOverwrite       Action = "overwrite"
	ActionSkip            Action = "skip"
	ActionConflictForeign Action = "conflict-foreign"
)

// AgentDef defines a coding agent and its skill directory conventions.
type AgentDef struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"displayName"`
	ProjectDir   string   `json:"projectDir"`          // Project-relative skill directory (e.g. ".cursor/skills")
	GlobalDir    string   `json:"globalDir,omitempty"` // Global skill directory (e.g. "~/.cursor/skills"); empty when project-only
	DetectPaths  []string `json:"detectPaths,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// InstallTarget pairs one skill with one agent and scope.
type InstallTarget struct {
	Skill       Skill    `json:"skill"`
	Agent       AgentDef `json:"-"`
	AgentID     string   `json:"agentId"`
	Scope       Scope    `json:"scope"`
	Destination string   `json:"destination"`
}

// Operation is a single planned filesystem operation.
type Operation struct {
	Target        InstallTarget `json:"target"`
	Method        Method        `json:"method"`
	Action        Action        `json:"action"`
	Conflict      string        `json:"conflict,omitempty"`
	CanonicalPath string        `json:"canonicalPath,omitempty"` // Set for symlink operations
	SharesWith    string        `json:"sharesWith,omitempty"`    // Agent whose operation owns the same destination
}

// InstallPlan is the ordered list of operations for one invocation.
type InstallPlan struct {
	Scope      Scope       `json:"scope"`
	Method     Method      `json:"method"`
	Root       string      `json:"root"`
	Operations []Operation `json:"operations"`
}

// Conflicts returns the operations whose destination is occupied by a foreign file.
func (p *InstallPlan) Conflicts() []Operation {
	var out []Operation
	for _, op := range p.Operations {
		if op.Action == ActionConflictForeign {
			out = append(out, op)
		}
	}
	return out
}

// ManifestEntry records one installed (agent, scope, skill) triple.
type ManifestEntry struct {
	AgentID            string           `json:"agentId"`
	Scope              Scope            `json:"scope"`
	SkillName          string           `json:"skillName"`
	Method             Method           `json:"method"`
	Source             SourceDescriptor `json:"source"`
	SourceVersion      string           `json:"sourceVersion"`
	ContentHash        string           `json:"contentHash,omitempty"`
	CanonicalStorePath string           `json:"canonicalStorePath,omitempty"`
	Destination        string           `json:"destination"`
	InstalledAt        time.Time        `json:"installedAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// Manifest is the persisted install state of one scope root.
type Manifest struct {
	Version            int             `json:"version"`
	Entries            []ManifestEntry `json:"entries"`
	LastSelectedAgents []string        `json:"lastSelectedAgents,omitempty"`
}

// CheckStatus classifies an installed skill against its source.
type CheckStatus string

const (
	StatusCurrent           CheckStatus = "current"
	StatusStale             CheckStatus = "stale"
	StatusSourceUnavailable CheckStatus = "source-unavailable"
)

// CheckResult is the check outcome for one manifest entry.
type CheckResult struct {
	SkillName        string      `json:"skillName"`
	AgentID          string      `json:"agentId"`
	Scope            Scope       `json:"scope"`
	Status           CheckStatus `json:"status"`
	InstalledVersion string      `json:"installedVersion"`
	LatestVersion    string      `json:"latestVersion,omitempty"`
	Reason           string      `json:"reason,omitempty"`
}
