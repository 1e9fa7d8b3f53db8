package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/barysiuk/skillsmd/internal/logger"
)

// Installer executes install plans against the filesystem.
type Installer struct {
	force         bool
	store         *ManifestStore
	source        SourceDescriptor
	sourceVersion string
	now           func() time.Time
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithForce executes conflict-foreign operations as overwrites.
func WithForce(force bool) InstallerOption {
	return func(i *Installer) { i.force = force }
}

// WithManifest records every successful operation in the store.
func WithManifest(store *ManifestStore) InstallerOption {
	return func(i *Installer) { i.store = store }
}

// WithSourceInfo sets the provenance written to manifest entries.
// version is the fetch-level marker (a commit hash for git sources).
func WithSourceInfo(src SourceDescriptor, version string) InstallerOption {
	return func(i *Installer) {
		i.source = src
		i.sourceVersion = version
	}
}

// WithClock overrides the time source used for manifest timestamps.
func WithClock(now func() time.Time) InstallerOption {
	return func(i *Installer) { i.now = now }
}

// NewInstaller creates an Installer.
func NewInstaller(opts ...InstallerOption) *Installer {
	inst := &Installer{now: time.Now}
	for _, o := range opts {
		o(inst)
	}
	return inst
}

// OpResult is the outcome of one plan operation.
type OpResult struct {
	Op     Operation
	Method Method // Method actually used; differs from Op.Method after a copy fallback
	Err    error
}

// ExecutionResult partitions a plan's operations by outcome.
type ExecutionResult struct {
	Succeeded []OpResult
	Failed    []OpResult
	Skipped   []OpResult
}

// AllConflicts reports whether nothing was installed because every
// executable operation hit a foreign file.
func (r *ExecutionResult) AllConflicts() bool {
	if len(r.Succeeded) > 0 || len(r.Failed) == 0 {
		return false
	}
	for _, f := range r.Failed {
		if !errors.Is(f.Err, ErrConflict) {
			return false
		}
	}
	return true
}

// Err aggregates per-operation failures. It returns nil when nothing failed.
func (r *ExecutionResult) Err() error {
	var result *multierror.Error
	for _, f := range r.Failed {
		result = multierror.Append(result, f.Err)
	}
	if r.AllConflicts() {
		result = multierror.Append(result, ErrAllConflicts)
	}
	return result.ErrorOrNil()
}

// Execute runs the plan's operations in order. A failed operation is
// recorded and execution continues with the next one.
func (inst *Installer) Execute(ctx context.Context, plan *InstallPlan) *ExecutionResult {
	log := logger.G(ctx)
	result := &ExecutionResult{}

	canonical := make(map[string]error)
	installed := make(map[string]Method)
	hashes := make(map[string]string)

	for _, op := range plan.Operations {
		t := op.Target
		opLog := log.WithField("agent", t.AgentID).WithField("skill", t.Skill.Name)

		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, OpResult{Op: op, Err: inst.installErr(op, err)})
			continue
		}

		switch op.Action {
		case ActionSkip:
			res := OpResult{Op: op}
			if method, ok := installed[t.Destination]; ok {
				res.Method = method
				if err := inst.record(op, method, plan.Root, hashes); err != nil {
					opLog.WithError(err).Warn("recording shared destination")
				}
			}
			opLog.WithField("shares_with", op.SharesWith).Debug("skipped shared destination")
			result.Skipped = append(result.Skipped, res)
			continue

		case ActionConflictForeign:
			if !inst.force {
				err := &ConflictError{AgentID: t.AgentID, Destination: t.Destination, Reason: op.Conflict}
				opLog.WithField("destination", t.Destination).Debug("conflict")
				result.Failed = append(result.Failed, OpResult{Op: op, Err: err})
				continue
			}
		}

		method, err := inst.apply(op, canonical)
		if err == nil {
			err = inst.record(op, method, plan.Root, hashes)
		}
		if err != nil {
			opLog.WithError(err).Debug("install failed")
			result.Failed = append(result.Failed, OpResult{Op: op, Method: method, Err: inst.installErr(op, err)})
			continue
		}

		installed[t.Destination] = method
		opLog.WithField("method", method).WithField("destination", t.Destination).Debug("installed")
		result.Succeeded = append(result.Succeeded, OpResult{Op: op, Method: method})
	}

	return result
}

func (inst *Installer) installErr(op Operation, err error) error {
	return &InstallError{
		AgentID:     op.Target.AgentID,
		SkillName:   op.Target.Skill.Name,
		Destination: op.Target.Destination,
		Err:         err,
	}
}

// apply materializes one operation and returns the method actually used.
func (inst *Installer) apply(op Operation, canonical map[string]error) (Method, error) {
	t := op.Target
	src := skillSourceDir(t.Skill)

	if op.Method == MethodCopy {
		if err := installCopy(src, t.Destination); err != nil {
			return MethodCopy, err
		}
		return MethodCopy, nil
	}

	err, done := canonical[op.CanonicalPath]
	if !done {
		err = installCopy(src, op.CanonicalPath)
		canonical[op.CanonicalPath] = err
	}
	if err != nil {
		return MethodSymlink, fmt.Errorf("refreshing canonical store: %w", err)
	}

	if samePath(op.CanonicalPath, t.Destination) {
		return MethodSymlink, nil
	}

	if err := installSymlink(op.CanonicalPath, t.Destination); err != nil {
		logger.L.WithError(err).WithField("destination", t.Destination).Warn("symlink failed, falling back to copy")
		if copyErr := installCopy(op.CanonicalPath, t.Destination); copyErr != nil {
			return MethodCopy, fmt.Errorf("symlink failed (%v) and copy failed: %w", err, copyErr)
		}
		return MethodCopy, nil
	}
	return MethodSymlink, nil
}

// record upserts the manifest entry for a completed operation and saves.
func (inst *Installer) record(op Operation, method Method, root string, hashes map[string]string) error {
	if inst.store == nil {
		return nil
	}
	t := op.Target

	src := skillSourceDir(t.Skill)
	hash, ok := hashes[src]
	if !ok {
		h, err := hashDir(src)
		if err != nil {
			return err
		}
		hash = h
		hashes[src] = h
	}

	now := inst.now().UTC()
	entry := ManifestEntry{
		AgentID:       t.AgentID,
		Scope:         t.Scope,
		SkillName:     t.Skill.Name,
		Method:        method,
		Source:        inst.source,
		SourceVersion: skillVersion(inst.source, inst.sourceVersion, hash),
		ContentHash:   hash,
		Destination:   t.Destination,
		InstalledAt:   now,
		UpdatedAt:     now,
	}
	if op.Method == MethodSymlink {
		entry.CanonicalStorePath = op.CanonicalPath
	}

	inst.store.Manifest.Upsert(entry)
	if err := inst.store.Save(); err != nil {
		return fmt.Errorf("recording install: %w", err)
	}
	return nil
}

// skillVersion is the version marker stored per entry: the fetch-level
// marker for remote sources, the skill's own content hash for local ones.
func skillVersion(src SourceDescriptor, fetched, contentHash string) string {
	if src.IsRemote() && fetched != "" {
		return fetched
	}
	return contentHash
}

// skillSourceDir resolves the skill directory so that a symlinked skill is
// copied by content rather than as a link.
func skillSourceDir(s Skill) string {
	if resolved, err := filepath.EvalSymlinks(s.SourcePath); err == nil {
		return resolved
	}
	return s.SourcePath
}

// installCopy stages src into a temporary sibling of dst and swaps it into place.
func installCopy(src, dst string) error {
	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	staged, err := os.MkdirTemp(parent, "."+filepath.Base(dst)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	if err := os.Chmod(staged, 0o755); err != nil {
		_ = os.RemoveAll(staged)
		return err
	}
	if err := copyDirectory(src, staged); err != nil {
		_ = os.RemoveAll(staged)
		return fmt.Errorf("copying skill files: %w", err)
	}
	if err := replacePath(staged, dst); err != nil {
		_ = os.RemoveAll(staged)
		return err
	}
	return nil
}

// installSymlink points link at target with a relative symlink.
// The link is created under a temporary name and renamed into place.
func installSymlink(target, link string) error {
	parent := filepath.Dir(link)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	realParent := parent
	if p, err := filepath.EvalSymlinks(parent); err == nil {
		realParent = p
	}
	realTarget := target
	if p, err := filepath.EvalSymlinks(target); err == nil {
		realTarget = p
	}

	// The agent directory already resolves to the canonical store.
	if samePath(filepath.Join(realParent, filepath.Base(link)), realTarget) {
		return nil
	}

	rel, err := filepath.Rel(realParent, realTarget)
	if err != nil {
		return fmt.Errorf("computing relative path: %w", err)
	}

	tmp := tempSibling(link)
	if err := os.Symlink(rel, tmp); err != nil {
		return err
	}
	if err := replacePath(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// replacePath moves staged over dst. An existing dst is moved aside first
// and restored if the final rename fails.
func replacePath(staged, dst string) error {
	var aside string
	if pathExists(dst) {
		aside = tempSibling(dst)
		if err := os.Rename(dst, aside); err != nil {
			return fmt.Errorf("moving existing %s aside: %w", dst, err)
		}
	}
	if err := os.Rename(staged, dst); err != nil {
		if aside != "" {
			_ = os.Rename(aside, dst)
		}
		return fmt.Errorf("renaming into place: %w", err)
	}
	if aside != "" {
		_ = os.RemoveAll(aside)
	}
	return nil
}

func tempSibling(path string) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.tmp-%x", filepath.Base(path), rand.Uint64()))
}
