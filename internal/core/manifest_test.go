package core

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadManifest_NotExists(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Manifest.Version != currentManifestVersion {
		t.Errorf("version = %d, want %d", store.Manifest.Version, currentManifestVersion)
	}
	if len(store.Manifest.Entries) != 0 {
		t.Errorf("expected empty manifest, got %d entries", len(store.Manifest.Entries))
	}
}

func TestLoadManifest_Lenient(t *testing.T) {
	dir := t.TempDir()
	content := `{
  // edited by hand
  "version": 1,
  "entries": [
    {
      "agentId": "cursor",
      "scope": "project",
      "skillName": "pdf",
      "method": "symlink",
      "source": {"provider": "github", "location": "https://github.com/acme/skills.git"},
      "destination": ".cursor/skills/pdf",
      "canonicalStorePath": ".agents/skills/pdf",
    },
  ],
}`
	writeManifestFile(t, dir, content)

	store, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.Manifest.Entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(store.Manifest.Entries))
	}
	e := store.Manifest.Entries[0]
	if e.Destination != filepath.Join(dir, ".cursor", "skills", "pdf") {
		t.Errorf("destination = %q, want absolute path under root", e.Destination)
	}
	if e.CanonicalStorePath != filepath.Join(dir, ".agents", "skills", "pdf") {
		t.Errorf("canonicalStorePath = %q", e.CanonicalStorePath)
	}
	if e.Source.Provider != ProviderGitHub {
		t.Errorf("provider = %q, want github", e.Source.Provider)
	}
}

func TestLoadManifest_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{{{`},
		{"future version", `{"version": 99, "entries": []}`},
		{"missing version", `{"entries": []}`},
		{"incomplete entry", `{"version": 1, "entries": [{"agentId": "cursor"}]}`},
		{"duplicate entry", `{"version": 1, "entries": [
			{"agentId": "cursor", "scope": "project", "skillName": "pdf"},
			{"agentId": "cursor", "scope": "project", "skillName": "pdf"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifestFile(t, dir, tt.content)

			_, err := LoadManifest(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrManifestCorruption) {
				t.Errorf("error = %v, want ErrManifestCorruption", err)
			}
			var mce *ManifestCorruptionError
			if !errors.As(err, &mce) || mce.Path != ManifestPath(dir) {
				t.Errorf("expected *ManifestCorruptionError with path, got %v", err)
			}
		})
	}
}

func TestManifestStore_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Manifest.Upsert(testEntry(dir, "zeta", "cursor", now))
	store.Manifest.Upsert(testEntry(dir, "alpha", "windsurf", now))
	store.Manifest.Upsert(testEntry(dir, "alpha", "cursor", now))
	store.Manifest.LastSelectedAgents = []string{"cursor", "windsurf"}

	if err := store.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(ManifestPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("manifest should end with a newline")
	}
	if strings.Contains(string(data), dir) {
		t.Error("paths inside the scope root should be stored relative")
	}
	if _, err := os.Stat(ManifestPath(dir) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain")
	}

	var raw Manifest
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("saved manifest is not plain JSON: %v", err)
	}
	want := []string{"alpha/cursor", "alpha/windsurf", "zeta/cursor"}
	for i, e := range raw.Entries {
		if got := e.SkillName + "/" + e.AgentID; got != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, got, want[i])
		}
	}

	reloaded, err := LoadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Manifest.Entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(reloaded.Manifest.Entries))
	}
	got, ok := reloaded.Manifest.Lookup("cursor", ScopeProject, "alpha")
	if !ok {
		t.Fatal("alpha/cursor not found after reload")
	}
	if got.Destination != filepath.Join(dir, ".cursor", "skills", "alpha") {
		t.Errorf("destination = %q", got.Destination)
	}
	if !got.InstalledAt.Equal(now) {
		t.Errorf("installedAt = %v, want %v", got.InstalledAt, now)
	}
	if len(reloaded.Manifest.LastSelectedAgents) != 2 {
		t.Errorf("lastSelectedAgents = %v", reloaded.Manifest.LastSelectedAgents)
	}
}

func TestManifest_UpsertPreservesInstalledAt(t *testing.T) {
	m := &Manifest{Version: currentManifestVersion}
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	e := testEntry("/root", "pdf", "cursor", first)
	m.Upsert(e)

	e.InstalledAt = later
	e.UpdatedAt = later
	e.SourceVersion = "v2"
	m.Upsert(e)

	if len(m.Entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(m.Entries))
	}
	got := m.Entries[0]
	if !got.InstalledAt.Equal(first) {
		t.Errorf("installedAt = %v, want %v", got.InstalledAt, first)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("updatedAt = %v, want %v", got.UpdatedAt, later)
	}
	if got.SourceVersion != "v2" {
		t.Errorf("sourceVersion = %q, want v2", got.SourceVersion)
	}
}

func TestManifest_Remove(t *testing.T) {
	m := &Manifest{Version: currentManifestVersion}
	now := time.Now()
	m.Upsert(testEntry("/root", "pdf", "cursor", now))
	m.Upsert(testEntry("/root", "pdf", "windsurf", now))

	if !m.Remove("cursor", ScopeProject, "pdf") {
		t.Error("expected removal")
	}
	if m.Remove("cursor", ScopeProject, "pdf") {
		t.Error("second removal should report false")
	}
	if m.Remove("windsurf", ScopeGlobal, "pdf") {
		t.Error("scope must be part of the key")
	}
	if len(m.Entries) != 1 || m.Entries[0].AgentID != "windsurf" {
		t.Errorf("entries = %+v", m.Entries)
	}
}

func TestManifest_List(t *testing.T) {
	m := &Manifest{Version: currentManifestVersion}
	now := time.Now()
	m.Upsert(testEntry("/root", "pdf", "cursor", now))
	m.Upsert(testEntry("/root", "pdf", "windsurf", now))
	m.Upsert(testEntry("/root", "docx", "cursor", now))
	global := testEntry("/home", "pdf", "cursor", now)
	global.Scope = ScopeGlobal
	m.Upsert(global)

	tests := []struct {
		name   string
		filter ManifestFilter
		want   int
	}{
		{"all", ManifestFilter{}, 4},
		{"wildcard", ManifestFilter{Skills: []string{"*"}}, 4},
		{"by skill", ManifestFilter{Skills: []string{"PDF"}}, 3},
		{"by agent", ManifestFilter{Agents: []string{"cursor"}}, 3},
		{"by scope", ManifestFilter{Scope: ScopeProject}, 3},
		{"combined", ManifestFilter{Skills: []string{"pdf"}, Agents: []string{"windsurf"}, Scope: ScopeProject}, 1},
		{"glob", ManifestFilter{Agents: []string{"wind*"}}, 1},
		{"no match", ManifestFilter{Skills: []string{"xlsx"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.List(tt.filter)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	all := m.List(ManifestFilter{})
	if all[0].SkillName != "docx" {
		t.Errorf("expected sorted output, first = %s", all[0].SkillName)
	}
}

func TestManifest_Refs(t *testing.T) {
	m := &Manifest{Version: currentManifestVersion}
	now := time.Now()
	m.Upsert(testEntry("/root", "pdf", "cursor", now))
	m.Upsert(testEntry("/root", "pdf", "windsurf", now))

	trae := testEntry("/root", "pdf", "trae", now)
	trae.Destination = "/root/.trae/skills/pdf"
	m.Upsert(trae)
	traeCN := testEntry("/root", "pdf", "trae-cn", now)
	traeCN.Destination = "/root/.trae/skills/pdf"
	m.Upsert(traeCN)

	if got := m.CanonicalRefs("/root/.agents/skills/pdf"); got != 4 {
		t.Errorf("CanonicalRefs = %d, want 4", got)
	}
	if got := m.CanonicalRefs("/root/.agents/skills/pdf/"); got != 4 {
		t.Errorf("CanonicalRefs with trailing slash = %d, want 4", got)
	}
	if got := m.DestinationRefs("/root/.trae/skills/pdf"); got != 2 {
		t.Errorf("DestinationRefs(trae) = %d, want 2", got)
	}
	if got := m.DestinationRefs("/root/.cursor/skills/pdf"); got != 1 {
		t.Errorf("DestinationRefs(cursor) = %d, want 1", got)
	}
	if !m.owns("/root/.agents/skills/pdf", "pdf", ScopeProject, MethodSymlink) {
		t.Error("canonical path should be owned by pdf")
	}
	if m.owns("/root/.cursor/skills/pdf", "docx", ScopeProject, MethodSymlink) {
		t.Error("path should not be owned by another skill")
	}
}

func TestRelToRoot(t *testing.T) {
	if got := relToRoot("/a/b", "/a/b/c/d"); got != "c/d" {
		t.Errorf("inside = %q", got)
	}
	if got := relToRoot("/a/b", "/x/y"); got != "/x/y" {
		t.Errorf("outside = %q", got)
	}
	if got := relToRoot("/a/b", ""); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := absFromRoot("/a/b", "c/d"); got != filepath.Join("/a/b", "c", "d") {
		t.Errorf("absFromRoot = %q", got)
	}
}

func writeManifestFile(t *testing.T, root, content string) {
	t.Helper()
	path := ManifestPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testEntry(root, skill, agent string, at time.Time) ManifestEntry {
	return ManifestEntry{
		AgentID:            agent,
		Scope:              ScopeProject,
		SkillName:          skill,
		Method:             MethodSymlink,
		Source:             SourceDescriptor{Provider: ProviderGitHub, Location: "https://github.com/acme/skills.git"},
		SourceVersion:      "v1",
		CanonicalStorePath: filepath.Join(root, ".agents", "skills", skill),
		Destination:        filepath.Join(root, "."+agent, "skills", skill),
		InstalledAt:        at,
		UpdatedAt:          at,
	}
}
