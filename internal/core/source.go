package core

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// ownerRepoPattern matches "owner/repo" optionally followed by "/path/to/skill".
var ownerRepoPattern = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)/([a-zA-Z0-9_.-]+)(?:/(.+))?$`)

// ownerRepoSkillPattern matches "owner/repo@skill-name".
var ownerRepoSkillPattern = regexp.MustCompile(`^([a-zA-Z0-9_.-]+)/([a-zA-Z0-9_.-]+)@(.+)$`)

// scpLikePattern matches git remote syntax such as "git@host:owner/repo.git".
var scpLikePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+@[a-zA-Z0-9_.-]+:.+$`)

// ResolveSource parses a skill source string into a canonical SourceDescriptor.
//
// Supported formats, in priority order:
//   - an existing filesystem path          → local
//   - "owner/repo"                         → GitHub repo
//   - "owner/repo/path/to/skill"           → GitHub repo with subpath
//   - "owner/repo@skill-name"              → GitHub repo, specific skill
//   - "https://github.com/o/r/tree/ref/p"  → GitHub with ref and subpath
//   - "https://gitlab.com/g/r/-/tree/ref/p" → GitLab with ref and subpath
//   - "git@host:owner/repo.git", "ssh://…" → git remote, no subpath
func ResolveSource(input string) (*SourceDescriptor, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, invalidSource("empty source")
	}

	// An existing path always wins over remote shorthand.
	expanded := expandPath(input)
	if info, err := os.Stat(expanded); err == nil {
		if !info.IsDir() {
			return nil, invalidSource("local path is not a directory: %s", expanded)
		}
		return resolveLocal(expanded)
	}
	if isLocalPath(input) {
		return nil, invalidSource("local path does not exist: %s", expanded)
	}

	if strings.HasPrefix(input, "https://") || strings.HasPrefix(input, "http://") {
		return resolveHTTP(input)
	}

	if strings.Contains(input, "://") {
		return &SourceDescriptor{Provider: ProviderGenericGit, Location: input}, nil
	}

	// scp-like remotes are cloned verbatim whatever the host.
	if scpLikePattern.MatchString(input) {
		return &SourceDescriptor{Provider: ProviderGenericGit, Location: input}, nil
	}

	if m := ownerRepoSkillPattern.FindStringSubmatch(input); m != nil {
		return &SourceDescriptor{
			Provider:    ProviderGitHub,
			Location:    githubCloneURL(m[1], m[2]),
			SkillFilter: m[3],
		}, nil
	}

	if m := ownerRepoPattern.FindStringSubmatch(input); m != nil {
		subpath, err := cleanSubpath(m[3])
		if err != nil {
			return nil, err
		}
		return &SourceDescriptor{
			Provider: ProviderGitHub,
			Location: githubCloneURL(m[1], m[2]),
			Subpath:  subpath,
		}, nil
	}

	return nil, invalidSource("unrecognized source format: %q", input)
}

func isLocalPath(input string) bool {
	return input == "." || input == ".." || input == "~" ||
		strings.HasPrefix(input, "./") ||
		strings.HasPrefix(input, "../") ||
		strings.HasPrefix(input, "/") ||
		strings.HasPrefix(input, "~/") ||
		filepath.IsAbs(input)
}

func resolveLocal(p string) (*SourceDescriptor, error) {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("resolving local path: %w", err)
	}
	return &SourceDescriptor{Provider: ProviderLocal, Location: filepath.Clean(absPath)}, nil
}

func resolveHTTP(input string) (*SourceDescriptor, error) {
	u, err := url.Parse(input)
	if err != nil {
		return nil, invalidSource("invalid URL %q: %v", input, err)
	}
	if u.Host == "" {
		return nil, invalidSource("URL has no host: %q", input)
	}

	provider := providerForHost(u.Hostname())
	if provider == ProviderGenericGit {
		return &SourceDescriptor{Provider: ProviderGenericGit, Location: input}, nil
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, invalidSource("URL does not name a repository: %q", input)
	}

	var repoParts, treeParts []string
	switch provider {
	case ProviderGitHub:
		// /owner/repo[/tree/<ref>[/<subpath>]]
		repoParts = parts[:2]
		if len(parts) >= 4 && parts[2] == "tree" {
			treeParts = parts[3:]
		}
	case ProviderGitLab:
		// /group[/subgroup…]/repo[/-/tree/<ref>[/<subpath>]]
		repoParts = parts
		for i, p := range parts {
			if p == "-" {
				repoParts = parts[:i]
				if i+2 < len(parts) && parts[i+1] == "tree" {
					treeParts = parts[i+2:]
				}
				break
			}
		}
		if len(repoParts) < 2 {
			return nil, invalidSource("URL does not name a repository: %q", input)
		}
	}

	last := len(repoParts) - 1
	repoParts[last] = strings.TrimSuffix(repoParts[last], ".git")

	desc := &SourceDescriptor{
		Provider: provider,
		Location: fmt.Sprintf("https://%s/%s.git", u.Host, strings.Join(repoParts, "/")),
	}
	if len(treeParts) > 0 {
		desc.Ref = treeParts[0]
		subpath, err := cleanSubpath(strings.Join(treeParts[1:], "/"))
		if err != nil {
			return nil, err
		}
		desc.Subpath = subpath
	}
	return desc, nil
}

func providerForHost(host string) Provider {
	host = strings.ToLower(host)
	switch {
	case host == "github.com" || host == "www.github.com":
		return ProviderGitHub
	case host == "gitlab.com" || strings.Contains(host, "gitlab"):
		return ProviderGitLab
	default:
		return ProviderGenericGit
	}
}

func githubCloneURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, strings.TrimSuffix(repo, ".git"))
}

// cleanSubpath normalizes a subpath and rejects anything that escapes the root.
func cleanSubpath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "/") {
		return "", invalidSource("subpath must be relative: %q", p)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", invalidSource("subpath escapes the repository root: %q", p)
	}
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}
