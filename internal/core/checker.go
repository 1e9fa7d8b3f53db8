package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/barysiuk/skillsmd/internal/logger"
)

// Checker compares installed skills against their sources.
type Checker struct {
	Fetcher SourceFetcher
	Agents  []AgentDef // Registry used to re-plan updates; nil means the embedded one
}

// NewChecker creates a Checker using the given fetcher.
func NewChecker(fetcher SourceFetcher) *Checker {
	return &Checker{Fetcher: fetcher}
}

// UpdateOptions controls Update.
type UpdateOptions struct {
	Filter ManifestFilter
	Clock  func() time.Time
}

// UpdateReport is the outcome of an update run.
type UpdateReport struct {
	Results []CheckResult // Status of every checked entry after the update
	Updated []CheckResult // Entries that were stale and are now current
	errs    *multierror.Error
}

// Err aggregates failures encountered while updating stale entries.
func (r *UpdateReport) Err() error {
	return r.errs.ErrorOrNil()
}

// checked carries what Update needs beyond the public CheckResult.
type checked struct {
	result  CheckResult
	entry   ManifestEntry
	skill   *Skill
	version string // Fetch-level version of the source
}

// Check reports every manifest entry as current, stale or source-unavailable.
// Each distinct source is fetched once.
func (c *Checker) Check(ctx context.Context, m *Manifest) ([]CheckResult, error) {
	return c.CheckFiltered(ctx, m, ManifestFilter{})
}

// CheckFiltered is Check restricted to the entries matching filter.
func (c *Checker) CheckFiltered(ctx context.Context, m *Manifest, filter ManifestFilter) ([]CheckResult, error) {
	cache := &CachingFetcher{Fetcher: c.Fetcher}
	defer cache.Close()

	items, err := c.check(ctx, cache, m.List(filter))
	if err != nil {
		return nil, err
	}
	results := make([]CheckResult, len(items))
	for i, it := range items {
		results[i] = it.result
	}
	return results, nil
}

func (c *Checker) check(ctx context.Context, fetcher SourceFetcher, entries []ManifestEntry) ([]checked, error) {
	groups := make(map[string][]int)
	var keys []string
	for i, e := range entries {
		key := e.Source.String()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Strings(keys)

	items := make([]checked, len(entries))
	for i, e := range entries {
		items[i] = checked{
			entry: e,
			result: CheckResult{
				SkillName:        e.SkillName,
				AgentID:          e.AgentID,
				Scope:            e.Scope,
				InstalledVersion: e.SourceVersion,
			},
		}
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := groups[key]
		src := entries[idx[0]].Source
		log := logger.G(ctx).WithField("source", key)

		skills, version, err := c.fetchSkills(ctx, fetcher, src)
		if err != nil {
			log.WithError(err).Debug("source unavailable")
			for _, i := range idx {
				items[i].result.Status = StatusSourceUnavailable
				items[i].result.Reason = err.Error()
			}
			continue
		}

		for _, i := range idx {
			it := &items[i]
			skill, ok := skills[it.entry.SkillName]
			if !ok {
				it.result.Status = StatusSourceUnavailable
				it.result.Reason = fmt.Sprintf("skill %s is no longer in the source", it.entry.SkillName)
				continue
			}

			hash, err := hashDir(skillSourceDir(skill))
			if err != nil {
				it.result.Status = StatusSourceUnavailable
				it.result.Reason = err.Error()
				continue
			}

			it.skill = &skill
			it.version = version
			it.result.LatestVersion = skillVersion(src, version, hash)
			if it.result.LatestVersion == it.entry.SourceVersion {
				it.result.Status = StatusCurrent
			} else {
				it.result.Status = StatusStale
			}
		}
	}

	return items, nil
}

// fetchSkills fetches a source and indexes its skills by name.
func (c *Checker) fetchSkills(ctx context.Context, fetcher SourceFetcher, src SourceDescriptor) (map[string]Skill, string, error) {
	res, err := fetcher.Fetch(ctx, &src)
	if err != nil {
		return nil, "", err
	}

	found, err := DiscoverSkills(res.Root, DiscoverOptions{
		IncludeInternal: true,
		FullDepth:       true,
		Subpath:         src.Subpath,
		Agents:          c.Agents,
	})
	if err != nil {
		return nil, "", err
	}

	skills := make(map[string]Skill, len(found))
	for _, s := range found {
		skills[s.Name] = s
	}
	return skills, res.Version, nil
}

// Update reinstalls every stale entry from its source, keeping the entry's
// agent, scope and method.
func (c *Checker) Update(ctx context.Context, store *ManifestStore, opts UpdateOptions) (*UpdateReport, error) {
	cache := &CachingFetcher{Fetcher: c.Fetcher}
	defer cache.Close()

	items, err := c.check(ctx, cache, store.Manifest.List(opts.Filter))
	if err != nil {
		return nil, err
	}

	agents := c.Agents
	if agents == nil {
		if agents, err = LoadAgents(); err != nil {
			return nil, err
		}
	}

	report := &UpdateReport{}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	for i := range items {
		it := &items[i]
		if it.result.Status != StatusStale {
			continue
		}
		e := it.entry

		agent, ok := AgentByID(agents, e.AgentID)
		if !ok {
			report.errs = multierror.Append(report.errs, fmt.Errorf("updating %s for %s: %w %q", e.SkillName, e.AgentID, ErrUnknownAgent, e.AgentID))
			continue
		}

		plan, err := Plan(PlanRequest{
			Skills:   []Skill{*it.skill},
			Agents:   []AgentDef{agent},
			Scope:    e.Scope,
			Method:   requestedMethod(e),
			Root:     store.Root,
			Manifest: store.Manifest,
		})
		if err != nil {
			report.errs = multierror.Append(report.errs, fmt.Errorf("planning update of %s for %s: %w", e.SkillName, e.AgentID, err))
			continue
		}

		res := NewInstaller(
			WithForce(true),
			WithManifest(store),
			WithSourceInfo(e.Source, it.version),
			WithClock(clock),
		).Execute(ctx, plan)
		if err := res.Err(); err != nil {
			report.errs = multierror.Append(report.errs, err)
			continue
		}

		it.result.Status = StatusCurrent
		it.result.InstalledVersion = it.result.LatestVersion
		report.Updated = append(report.Updated, it.result)
	}

	report.Results = make([]CheckResult, len(items))
	for i, it := range items {
		report.Results[i] = it.result
	}
	return report, nil
}

// requestedMethod is the method an entry was installed with. An entry that fell
// back to copy while keeping a canonical store was requested as a symlink.
func requestedMethod(e ManifestEntry) Method {
	if e.Method == MethodCopy && e.CanonicalStorePath != "" {
		return MethodSymlink
	}
	return e.Method
}
