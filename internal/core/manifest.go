package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
)

const currentManifestVersion = 1

// ManifestPath returns the manifest file location for a scope root.
func ManifestPath(scopeRoot string) string {
	return filepath.Join(scopeRoot, filepath.FromSlash(manifestRelPath))
}

// ManifestStore binds a Manifest to the scope root it is persisted under.
// Concurrent invocations against the same scope root are not coordinated.
type ManifestStore struct {
	Root     string
	Manifest *Manifest
}

// LoadManifest reads the manifest for a scope root. A missing file yields an
// empty manifest. Comments and trailing commas are tolerated; anything else
// that does not parse is reported as *ManifestCorruptionError.
func LoadManifest(scopeRoot string) (*ManifestStore, error) {
	path := ManifestPath(scopeRoot)
	store := &ManifestStore{
		Root:     scopeRoot,
		Manifest: &Manifest{Version: currentManifestVersion, Entries: []ManifestEntry{}},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return store, nil
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, &ManifestCorruptionError{Path: path, Err: err}
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(std))
	if err := dec.Decode(&m); err != nil {
		return nil, &ManifestCorruptionError{Path: path, Err: err}
	}
	if m.Version < 1 || m.Version > currentManifestVersion {
		return nil, &ManifestCorruptionError{Path: path, Err: fmt.Errorf("unsupported version %d", m.Version)}
	}

	seen := make(map[string]bool, len(m.Entries))
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.AgentID == "" || e.SkillName == "" || (e.Scope != ScopeProject && e.Scope != ScopeGlobal) {
			return nil, &ManifestCorruptionError{Path: path, Err: fmt.Errorf("entry %d is incomplete", i)}
		}
		key := entryKey(e.AgentID, e.Scope, e.SkillName)
		if seen[key] {
			return nil, &ManifestCorruptionError{Path: path, Err: fmt.Errorf("duplicate entry %s", key)}
		}
		seen[key] = true
		e.Destination = absFromRoot(scopeRoot, e.Destination)
		e.CanonicalStorePath = absFromRoot(scopeRoot, e.CanonicalStorePath)
	}
	if m.Entries == nil {
		m.Entries = []ManifestEntry{}
	}

	store.Manifest = &m
	return store, nil
}

// Path returns the manifest file location.
func (s *ManifestStore) Path() string {
	return ManifestPath(s.Root)
}

// Save writes the manifest atomically. Entries are sorted for deterministic
// output and paths inside the scope root are stored relative to it.
func (s *ManifestStore) Save() error {
	m := s.Manifest
	m.Version = currentManifestVersion
	sortEntries(m.Entries)

	out := Manifest{
		Version:            m.Version,
		Entries:            make([]ManifestEntry, len(m.Entries)),
		LastSelectedAgents: m.LastSelectedAgents,
	}
	for i, e := range m.Entries {
		e.Destination = relToRoot(s.Root, e.Destination)
		e.CanonicalStorePath = relToRoot(s.Root, e.CanonicalStorePath)
		out.Entries[i] = e
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// ManifestFilter selects manifest entries. Empty slices match everything;
// "*" is an explicit wildcard.
type ManifestFilter struct {
	Skills []string
	Agents []string
	Scope  Scope
}

func (f ManifestFilter) matches(e ManifestEntry) bool {
	if f.Scope != "" && e.Scope != f.Scope {
		return false
	}
	if len(f.Skills) > 0 && !matchesAny(f.Skills, e.SkillName) {
		return false
	}
	if len(f.Agents) > 0 && !matchesAny(f.Agents, e.AgentID) {
		return false
	}
	return true
}

// Upsert adds or replaces the entry keyed by (agentId, scope, skillName).
// The original InstalledAt is preserved on replace.
func (m *Manifest) Upsert(entry ManifestEntry) {
	for i, e := range m.Entries {
		if e.AgentID == entry.AgentID && e.Scope == entry.Scope && e.SkillName == entry.SkillName {
			if !e.InstalledAt.IsZero() {
				entry.InstalledAt = e.InstalledAt
			}
			m.Entries[i] = entry
			return
		}
	}
	m.Entries = append(m.Entries, entry)
}

// Remove deletes the entry keyed by (agentId, scope, skillName).
func (m *Manifest) Remove(agentID string, scope Scope, skillName string) bool {
	for i, e := range m.Entries {
		if e.AgentID == agentID && e.Scope == scope && e.SkillName == skillName {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the entry keyed by (agentId, scope, skillName).
func (m *Manifest) Lookup(agentID string, scope Scope, skillName string) (ManifestEntry, bool) {
	for _, e := range m.Entries {
		if e.AgentID == agentID && e.Scope == scope && e.SkillName == skillName {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// List returns the entries matching the filter, sorted by skill then agent.
func (m *Manifest) List(filter ManifestFilter) []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// CanonicalRefs counts entries that share the given canonical store path.
func (m *Manifest) CanonicalRefs(path string) int {
	n := 0
	for _, e := range m.Entries {
		if e.CanonicalStorePath != "" && samePath(e.CanonicalStorePath, path) {
			n++
		}
	}
	return n
}

// DestinationRefs counts entries whose destination is the given path.
func (m *Manifest) DestinationRefs(path string) int {
	n := 0
	for _, e := range m.Entries {
		if samePath(e.Destination, path) {
			n++
		}
	}
	return n
}

// owns reports whether the manifest records path as belonging to skillName
// installed with method, either as an agent destination or as its canonical
// store copy. An entry whose symlink fell back to a copy counts as symlink.
func (m *Manifest) owns(path, skillName string, scope Scope, method Method) bool {
	for _, e := range m.Entries {
		if e.SkillName != skillName || e.Scope != scope || requestedMethod(e) != method {
			continue
		}
		if samePath(e.Destination, path) || (e.CanonicalStorePath != "" && samePath(e.CanonicalStorePath, path)) {
			return true
		}
	}
	return false
}

func sortEntries(entries []ManifestEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.SkillName != b.SkillName {
			return a.SkillName < b.SkillName
		}
		if a.AgentID != b.AgentID {
			return a.AgentID < b.AgentID
		}
		return a.Scope < b.Scope
	})
}

func entryKey(agentID string, scope Scope, skillName string) string {
	return strings.Join([]string{agentID, string(scope), skillName}, "/")
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// relToRoot renders p relative to root when p lies inside it.
func relToRoot(root, p string) string {
	if p == "" || !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}

// absFromRoot resolves a stored path against root.
func absFromRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
