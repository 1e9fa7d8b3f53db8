package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"github.com/barysiuk/skillsmd/internal/core/skillmd"
	"github.com/barysiuk/skillsmd/internal/logger"
)

// prioritySkillDirs are searched, in order, before any agent convention.
var prioritySkillDirs = []string{
	"",
	"skills",
	"skills/.curated",
	"skills/.experimental",
	"skills/.system",
}

// skipWalkDirs are never descended into during the recursive fallback.
var skipWalkDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// DiscoverOptions controls skill discovery.
type DiscoverOptions struct {
	// IncludeInternal keeps skills whose frontmatter sets metadata.internal.
	IncludeInternal bool
	// FullDepth keeps searching when the search root itself is a skill.
	FullDepth bool
	// Subpath narrows the search to a directory inside root.
	Subpath string
	// Agents supplies the per-agent project conventions searched in phase 1.
	// When nil the embedded registry is used.
	Agents []AgentDef
}

// DiscoverSkills finds valid skills inside root.
//
// Phase 1 inspects a fixed list of known locations. Phase 2, a recursive
// walk of the whole tree, runs only when phase 1 found nothing.
func DiscoverSkills(root string, opts DiscoverOptions) ([]Skill, error) {
	log := logger.L.WithField("root", root)

	searchRoot := root
	if opts.Subpath != "" {
		sub, err := cleanSubpath(opts.Subpath)
		if err != nil {
			return nil, err
		}
		searchRoot = filepath.Join(root, filepath.FromSlash(sub))
		if !dirExists(searchRoot) {
			return nil, fmt.Errorf("%w: subpath %q does not exist", ErrNoSkillsFound, opts.Subpath)
		}
	}

	agents := opts.Agents
	if agents == nil {
		var err error
		if agents, err = LoadAgents(); err != nil {
			return nil, err
		}
	}

	d := &discovery{opts: opts, byName: make(map[string]Skill), seenDirs: make(map[string]bool), log: log}

	// A skill at the search root short-circuits unless full depth is requested.
	if fileExists(filepath.Join(searchRoot, skillmd.FileName)) && !opts.FullDepth {
		skill, err := loadSkill(searchRoot)
		if err != nil {
			if opts.Subpath != "" {
				return nil, &ValidationError{Message: err.Error(), Paths: []string{filepath.Join(searchRoot, skillmd.FileName)}}
			}
			log.WithError(err).Debug("skipping invalid root SKILL.md")
		} else if skill.Internal && !opts.IncludeInternal {
			log.WithField("skill", skill.Name).Debug("skipping internal skill")
		} else {
			return []Skill{*skill}, nil
		}
	}

	locations := append([]string{}, prioritySkillDirs...)
	locations = append(locations, agentProjectDirs(agents)...)

	log.Debug("discovery phase 1: known locations")
	for _, loc := range locations {
		dir := filepath.Join(searchRoot, filepath.FromSlash(loc))
		if !dirExists(dir) {
			continue
		}
		if err := d.consider(dir); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() && entry.Type()&fs.ModeSymlink == 0 {
				continue
			}
			if err := d.consider(filepath.Join(dir, entry.Name())); err != nil {
				return nil, err
			}
		}
	}

	if len(d.byName) == 0 {
		log.Debug("discovery phase 2: recursive fallback")
		err := filepath.WalkDir(searchRoot, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !entry.IsDir() {
				return nil
			}
			if path != searchRoot && skipWalkDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return d.consider(path)
		})
		if err != nil {
			return nil, err
		}
	}

	if len(d.byName) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSkillsFound, searchRoot)
	}

	skills := make([]Skill, 0, len(d.byName))
	for _, s := range d.byName {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

type discovery struct {
	opts     DiscoverOptions
	byName   map[string]Skill
	seenDirs map[string]bool
	log      *logrus.Entry
}

// consider validates dir as a skill candidate and records it.
// Directories without a SKILL.md and invalid skills are ignored; a name
// already taken by a different directory is a validation error.
func (d *discovery) consider(dir string) error {
	key := dir
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		key = resolved
	}
	if d.seenDirs[key] {
		return nil
	}
	d.seenDirs[key] = true

	if !fileExists(filepath.Join(dir, skillmd.FileName)) {
		return nil
	}

	skill, err := loadSkill(dir)
	if err != nil {
		d.log.WithError(err).WithField("path", dir).Debug("skipping invalid skill")
		return nil
	}
	if skill.Internal && !d.opts.IncludeInternal {
		d.log.WithField("skill", skill.Name).Debug("skipping internal skill")
		return nil
	}

	if existing, ok := d.byName[skill.Name]; ok {
		return &ValidationError{
			Message: fmt.Sprintf("duplicate skill name %q", skill.Name),
			Paths:   []string{existing.SourcePath, skill.SourcePath},
		}
	}
	d.byName[skill.Name] = *skill
	return nil
}

func loadSkill(dir string) (*Skill, error) {
	doc, err := skillmd.Parse(filepath.Join(dir, skillmd.FileName))
	if err != nil {
		return nil, err
	}
	return &Skill{
		Name:           sanitizeName(doc.Name),
		DisplayName:    doc.Name,
		Description:    doc.Description,
		SourcePath:     dir,
		Internal:       doc.Internal,
		RawFrontmatter: doc.Frontmatter,
	}, nil
}

// FilterSkills selects skills by name. "*" selects all; other patterns are
// matched case-insensitively against the install name and the display name,
// with glob patterns supported.
func FilterSkills(skills []Skill, patterns []string) []Skill {
	var out []Skill
	for _, s := range skills {
		if matchesAny(patterns, s.Name, s.DisplayName) {
			out = append(out, s)
		}
	}
	return out
}

func matchesAny(patterns []string, names ...string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if p == "*" {
			return true
		}
		for _, n := range names {
			n = strings.ToLower(n)
			if n == p {
				return true
			}
			if strings.ContainsAny(p, "*?[{") {
				if ok, _ := doublestar.Match(p, n); ok {
					return true
				}
			}
		}
	}
	return false
}
