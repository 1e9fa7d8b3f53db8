package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/barysiuk/skillsmd/internal/logger"
)

// Remover uninstalls skills recorded in a scope's manifest.
type Remover struct {
	Store *ManifestStore
}

// NewRemover creates a Remover for the given manifest store.
func NewRemover(store *ManifestStore) *Remover {
	return &Remover{Store: store}
}

// RemoveReport lists what a removal touched.
type RemoveReport struct {
	Removed      []ManifestEntry // Manifest entries deleted
	DeletedPaths []string        // Filesystem paths deleted
}

// removeAll is replaced in tests to simulate deletion failures.
var removeAll = os.RemoveAll

// Remove deletes the manifest entries matching filter and their files.
//
// A destination is deleted only when no remaining entry references it, and a
// canonical store copy only when no remaining entry points at it. Paths the
// manifest does not know about are never touched. An entry whose files could
// not be deleted stays in the manifest.
func (r *Remover) Remove(filter ManifestFilter) (*RemoveReport, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("remover has no manifest")
	}
	m := r.Store.Manifest
	report := &RemoveReport{}

	matched := m.List(filter)
	if len(matched) == 0 {
		return report, nil
	}
	for _, e := range matched {
		m.Remove(e.AgentID, e.Scope, e.SkillName)
	}

	var errs *multierror.Error
	deleted := make(map[string]bool)
	failed := make(map[string]bool)
	// drop deletes p unless another entry still references it and reports
	// whether p is gone or no longer owned by the removed entry.
	drop := func(p, skill string) bool {
		if p == "" || deleted[p] {
			return true
		}
		if failed[p] {
			return false
		}
		if m.DestinationRefs(p) > 0 || m.CanonicalRefs(p) > 0 {
			return true
		}
		deleted[p] = true
		if !pathExists(p) {
			return true
		}
		if err := removeAll(p); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("removing %s: %w", p, err))
			delete(deleted, p)
			failed[p] = true
			return false
		}
		logger.L.WithField("path", p).WithField("skill", skill).Debug("removed")
		report.DeletedPaths = append(report.DeletedPaths, p)
		cleanupEmptyParents(filepath.Dir(p), r.Store.Root)
		return true
	}

	// Destinations go first so that an entry kept after a failure still
	// holds its canonical store copy.
	kept := make([]bool, len(matched))
	for i, e := range matched {
		if !drop(e.Destination, e.SkillName) {
			kept[i] = true
			m.Upsert(e)
		}
	}
	for i, e := range matched {
		if kept[i] {
			continue
		}
		if !drop(e.CanonicalStorePath, e.SkillName) {
			kept[i] = true
			m.Upsert(e)
			continue
		}
		report.Removed = append(report.Removed, e)
	}

	if err := r.Store.Save(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return report, errs.ErrorOrNil()
}
