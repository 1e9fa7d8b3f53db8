package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }

func localSource(dir string) SourceDescriptor {
	return SourceDescriptor{Provider: ProviderLocal, Location: dir}
}

func planAndExecute(t *testing.T, store *ManifestStore, skills []Skill, agentIDs []string, method Method, opts ...InstallerOption) (*InstallPlan, *ExecutionResult) {
	t.Helper()
	var agents []AgentDef
	for _, id := range agentIDs {
		agents = append(agents, testAgent(t, id))
	}
	plan, err := Plan(PlanRequest{
		Skills:   skills,
		Agents:   agents,
		Scope:    ScopeProject,
		Method:   method,
		Root:     store.Root,
		Manifest: store.Manifest,
	})
	require.NoError(t, err)

	opts = append([]InstallerOption{WithManifest(store), WithClock(testClock)}, opts...)
	return plan, NewInstaller(opts...).Execute(context.Background(), plan)
}

func TestInstaller_SymlinkTwoAgents(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)
	skill := testSkill(t, "pdf")

	_, res := planAndExecute(t, store, []Skill{skill}, []string{"cursor", "windsurf"}, MethodSymlink,
		WithSourceInfo(localSource(filepath.Dir(skill.SourcePath)), ""))
	require.NoError(t, res.Err())
	require.Len(t, res.Succeeded, 2)

	canonical := filepath.Join(root, ".agents", "skills", "pdf")
	assert.FileExists(t, filepath.Join(canonical, "SKILL.md"))
	assert.FileExists(t, filepath.Join(canonical, "rules.md"))

	for _, agent := range []string{".cursor", ".windsurf"} {
		link := filepath.Join(root, agent, "skills", "pdf")
		require.True(t, isSymlink(link), "%s should be a symlink", link)
		target, err := os.Readlink(link)
		require.NoError(t, err)
		assert.False(t, filepath.IsAbs(target), "symlink should be relative, got %s", target)
		data, err := os.ReadFile(filepath.Join(link, "SKILL.md"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "name: pdf")
	}

	entries := store.Manifest.List(ManifestFilter{})
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, MethodSymlink, e.Method)
		assert.Equal(t, canonical, e.CanonicalStorePath)
		assert.Regexp(t, `^h1:`, e.ContentHash)
		assert.Equal(t, e.ContentHash, e.SourceVersion, "local sources are versioned by content")
		assert.Equal(t, testClock(), e.InstalledAt)
	}
	assert.Equal(t, 2, store.Manifest.CanonicalRefs(canonical))

	reloaded, err := LoadManifest(root)
	require.NoError(t, err)
	assert.Len(t, reloaded.Manifest.Entries, 2, "manifest is saved after each operation")
}

func TestInstaller_Idempotent(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)
	skill := testSkill(t, "pdf")

	for _, method := range []Method{MethodCopy, MethodSymlink} {
		t.Run(string(method), func(t *testing.T) {
			_, first := planAndExecute(t, store, []Skill{skill}, []string{"cursor"}, method)
			require.NoError(t, first.Err())

			dest := filepath.Join(root, ".cursor", "skills", "pdf", "SKILL.md")
			before, err := os.ReadFile(dest)
			require.NoError(t, err)

			plan, second := planAndExecute(t, store, []Skill{skill}, []string{"cursor"}, method)
			require.NoError(t, second.Err())
			assert.Equal(t, ActionOverwrite, plan.Operations[0].Action)

			after, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestInstaller_CopyIsIndependent(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)
	skill := testSkill(t, "pdf")
	require.NoError(t, os.WriteFile(filepath.Join(skill.SourcePath, "README.md"), []byte("readme"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(skill.SourcePath, "_drafts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skill.SourcePath, "_drafts", "x.md"), []byte("x"), 0o644))

	_, res := planAndExecute(t, store, []Skill{skill}, []string{"cursor", "windsurf"}, MethodCopy)
	require.NoError(t, res.Err())

	for _, agent := range []string{".cursor", ".windsurf"} {
		dest := filepath.Join(root, agent, "skills", "pdf")
		assert.False(t, isSymlink(dest))
		assert.FileExists(t, filepath.Join(dest, "rules.md"))
		assert.NoFileExists(t, filepath.Join(dest, "README.md"))
		assert.NoDirExists(t, filepath.Join(dest, "_drafts"))
	}
	assert.NoDirExists(t, filepath.Join(root, ".agents", "skills", "pdf"))

	for _, e := range store.Manifest.Entries {
		assert.Equal(t, MethodCopy, e.Method)
		assert.Empty(t, e.CanonicalStorePath)
	}
}

func TestInstaller_ConflictWithoutForce(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)

	foreign := filepath.Join(root, ".cursor", "skills", "pdf")
	require.NoError(t, os.MkdirAll(foreign, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(foreign, "notes.md"), []byte("keep me"), 0o644))

	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"cursor", "windsurf"}, MethodCopy)

	require.Len(t, res.Succeeded, 1)
	require.Len(t, res.Failed, 1)
	assert.False(t, res.AllConflicts())

	var ce *ConflictError
	require.True(t, errors.As(res.Failed[0].Err, &ce))
	assert.Equal(t, "cursor", ce.AgentID)
	assert.ErrorIs(t, res.Err(), ErrConflict)

	data, err := os.ReadFile(filepath.Join(foreign, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data), "foreign files are never overwritten")

	_, ok := store.Manifest.Lookup("cursor", ScopeProject, "pdf")
	assert.False(t, ok)
}

func TestInstaller_AllConflicts(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cursor", "skills", "pdf"), 0o755))

	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"cursor"}, MethodCopy)
	assert.True(t, res.AllConflicts())
	assert.ErrorIs(t, res.Err(), ErrAllConflicts)
}

func TestInstaller_ForceOverwritesForeign(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)

	foreign := filepath.Join(root, ".cursor", "skills", "pdf")
	require.NoError(t, os.MkdirAll(foreign, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(foreign, "notes.md"), []byte("old"), 0o644))

	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"cursor"}, MethodSymlink, WithForce(true))
	require.NoError(t, res.Err())
	assert.True(t, isSymlink(foreign))
	assert.NoFileExists(t, filepath.Join(foreign, "notes.md"))
}

func TestInstaller_SharedDestination(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)

	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"trae", "trae-cn"}, MethodSymlink)
	require.NoError(t, res.Err())
	assert.Len(t, res.Succeeded, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, MethodSymlink, res.Skipped[0].Method)

	dest := filepath.Join(root, ".trae", "skills", "pdf")
	assert.Equal(t, 2, store.Manifest.DestinationRefs(dest))
	_, ok := store.Manifest.Lookup("trae-cn", ScopeProject, "pdf")
	assert.True(t, ok)
}

func TestInstaller_UniversalAgentSelfLoop(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)

	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"amp", "cursor"}, MethodSymlink)
	require.NoError(t, res.Err())

	canonical := filepath.Join(root, ".agents", "skills", "pdf")
	assert.False(t, isSymlink(canonical), "canonical store must stay a real directory")
	assert.FileExists(t, filepath.Join(canonical, "SKILL.md"))

	amp, ok := store.Manifest.Lookup("amp", ScopeProject, "pdf")
	require.True(t, ok)
	assert.Equal(t, canonical, amp.Destination)
	assert.Equal(t, canonical, amp.CanonicalStorePath)
}

func TestInstaller_AgentDirLinkedToCanonicalStore(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".agents", "skills"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cursor"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join("..", ".agents", "skills"), filepath.Join(root, ".cursor", "skills")))

	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"cursor"}, MethodSymlink)
	require.NoError(t, res.Err())

	canonical := filepath.Join(root, ".agents", "skills", "pdf")
	assert.False(t, isSymlink(canonical))
	assert.FileExists(t, filepath.Join(canonical, "SKILL.md"))
}

func TestInstaller_RemoteSourceVersion(t *testing.T) {
	root := t.TempDir()
	store, err := LoadManifest(root)
	require.NoError(t, err)

	src := SourceDescriptor{Provider: ProviderGitHub, Location: "https://github.com/acme/skills.git"}
	_, res := planAndExecute(t, store, []Skill{testSkill(t, "pdf")}, []string{"cursor"}, MethodSymlink,
		WithSourceInfo(src, "0123abcd"))
	require.NoError(t, res.Err())

	e, ok := store.Manifest.Lookup("cursor", ScopeProject, "pdf")
	require.True(t, ok)
	assert.Equal(t, "0123abcd", e.SourceVersion)
	assert.Equal(t, src, e.Source)
	assert.NotEqual(t, e.SourceVersion, e.ContentHash)
}

func TestInstaller_CancelledContext(t *testing.T) {
	root := t.TempDir()
	plan, err := Plan(PlanRequest{
		Skills: []Skill{testSkill(t, "pdf")},
		Agents: []AgentDef{testAgent(t, "cursor")},
		Scope:  ScopeProject,
		Root:   root,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewInstaller().Execute(ctx, plan)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, ErrInstall)
	assert.ErrorIs(t, res.Failed[0].Err, context.Canceled)
}

func TestReplacePath(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "old.txt"), []byte("old"), 0o644))

	staged := filepath.Join(dir, "staged")
	require.NoError(t, os.MkdirAll(staged, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "new.txt"), []byte("new"), 0o644))

	require.NoError(t, replacePath(staged, dst))
	assert.FileExists(t, filepath.Join(dst, "new.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "old.txt"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging or aside directories remain")
}
