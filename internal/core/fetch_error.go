package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// FetchErrorKind classifies a fetch failure.
type FetchErrorKind int

const (
	// FetchErrUnknown is an unclassified fetch failure.
	FetchErrUnknown FetchErrorKind = iota
	// FetchErrAuth means authentication failed (credentials missing or invalid).
	FetchErrAuth
	// FetchErrNotFound means the repository, ref or path does not exist or is not accessible.
	FetchErrNotFound
	// FetchErrNetwork means the host could not be reached (DNS, connectivity).
	FetchErrNetwork
	// FetchErrSSHKey means the SSH key was rejected or not found.
	FetchErrSSHKey
	// FetchErrHostKey means SSH host key verification failed.
	FetchErrHostKey
	// FetchErrTimeout means the fetch was cancelled or timed out.
	FetchErrTimeout
)

// String returns a human-readable label for the error kind.
func (k FetchErrorKind) String() string {
	switch k {
	case FetchErrAuth:
		return "Authentication Required"
	case FetchErrNotFound:
		return "Not Found"
	case FetchErrNetwork:
		return "Network Error"
	case FetchErrSSHKey:
		return "SSH Key Error"
	case FetchErrHostKey:
		return "SSH Host Key Error"
	case FetchErrTimeout:
		return "Timeout"
	default:
		return "Unknown Error"
	}
}

// FetchError is returned when a source cannot be materialized.
// It carries a classification and actionable hints.
type FetchError struct {
	Kind   FetchErrorKind
	Source SourceDescriptor
	Err    error
	Hints  []string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s (%s): %v", e.Source.Location, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// Retryable reports whether retrying the whole fetch could help.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchErrNetwork, FetchErrTimeout, FetchErrUnknown:
		return true
	default:
		return false
	}
}

// AsFetchError extracts a *FetchError from an error chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) && fe != nil {
		return fe, true
	}
	return nil, false
}

// ClassifyFetchError wraps a raw transport error into a *FetchError.
func ClassifyFetchError(src SourceDescriptor, err error) *FetchError {
	kind := classifyFetchErr(err)
	return &FetchError{
		Kind:   kind,
		Source: src,
		Err:    err,
		Hints:  hintsForError(kind, detectProtocol(src.Location), src.Location),
	}
}

func classifyFetchErr(err error) FetchErrorKind {
	switch {
	case err == nil:
		return FetchErrUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return FetchErrTimeout
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return FetchErrAuth
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, plumbing.ErrReferenceNotFound):
		return FetchErrNotFound
	}
	return classifyOutput(err.Error())
}

// detectProtocol returns "ssh" or "https" based on the clone URL format.
func detectProtocol(url string) string {
	if isSSHURL(url) {
		return "ssh"
	}
	return "https"
}

// classifyOutput pattern-matches error text to determine the error kind.
func classifyOutput(output string) FetchErrorKind {
	lower := strings.ToLower(output)

	if strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline exceeded") {
		return FetchErrTimeout
	}

	if strings.Contains(lower, "permission denied (publickey)") ||
		strings.Contains(lower, "no such identity") ||
		strings.Contains(lower, "load key") ||
		strings.Contains(lower, "ssh: handshake failed") ||
		strings.Contains(lower, "ssh authentication unavailable") {
		return FetchErrSSHKey
	}

	if strings.Contains(lower, "host key verification failed") ||
		strings.Contains(lower, "knownhosts") ||
		strings.Contains(lower, "known_hosts") {
		return FetchErrHostKey
	}

	if strings.Contains(lower, "authentication required") ||
		strings.Contains(lower, "authorization failed") ||
		strings.Contains(lower, "invalid credentials") ||
		strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "401") ||
		strings.Contains(lower, "403") {
		return FetchErrAuth
	}

	if strings.Contains(lower, "repository not found") ||
		strings.Contains(lower, "reference not found") ||
		strings.Contains(lower, "couldn't find remote ref") ||
		strings.Contains(lower, "does not appear to be a git repository") ||
		strings.Contains(lower, "not found") {
		return FetchErrNotFound
	}

	if strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "could not resolve host") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "no route to host") {
		return FetchErrNetwork
	}

	return FetchErrUnknown
}

// hintsForError returns actionable suggestions based on the error kind and protocol.
func hintsForError(kind FetchErrorKind, protocol, cloneURL string) []string {
	switch kind {
	case FetchErrAuth:
		hints := []string{
			"Set GITHUB_TOKEN, GITLAB_TOKEN or GIT_TOKEN for HTTPS access to private repositories",
			"Or set GIT_USERNAME and GIT_PASSWORD",
		}
		if protocol == "https" {
			if sshURL := httpsToSSH(cloneURL); sshURL != "" {
				hints = append(hints, fmt.Sprintf("Try SSH instead: %s", sshURL))
			}
		}
		return hints

	case FetchErrSSHKey:
		hints := []string{
			"Ensure your SSH key is loaded: `ssh-add -l`",
			"If no keys are listed, add one: `ssh-add ~/.ssh/id_ed25519`",
		}
		if protocol == "ssh" {
			if httpsURL := sshToHTTPS(cloneURL); httpsURL != "" {
				hints = append(hints, fmt.Sprintf("Try HTTPS instead: %s", httpsURL))
			}
		}
		return hints

	case FetchErrHostKey:
		return []string{
			"The SSH host key is not trusted. Run: `ssh-keyscan github.com >> ~/.ssh/known_hosts`",
		}

	case FetchErrNotFound:
		return []string{
			"Verify the repository URL and ref are correct",
			"Ensure you have access to this repository (it may be private)",
		}

	case FetchErrNetwork:
		return []string{
			"Check your internet connection",
			"Verify the hostname in the URL is correct",
		}

	case FetchErrTimeout:
		return []string{
			"The fetch timed out; raise SKILLSMD_FETCH_TIMEOUT for large repositories",
		}

	default:
		return []string{
			"Verify the source is correct and accessible",
		}
	}
}

// httpsToSSH converts an HTTPS GitHub/GitLab URL to SSH format.
// Returns empty string if conversion is not possible.
func httpsToSSH(url string) string {
	for _, host := range []string{"github.com", "gitlab.com"} {
		prefix := "https://" + host + "/"
		if strings.HasPrefix(url, prefix) {
			path := strings.TrimPrefix(url, prefix)
			if !strings.HasSuffix(path, ".git") {
				path += ".git"
			}
			return "git@" + host + ":" + path
		}
	}
	return ""
}

// sshToHTTPS converts an SSH git URL to HTTPS format.
// Returns empty string if conversion is not possible.
func sshToHTTPS(url string) string {
	if !strings.HasPrefix(url, "git@") {
		return ""
	}
	parts := strings.SplitN(strings.TrimPrefix(url, "git@"), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	switch parts[0] {
	case "github.com", "gitlab.com":
		return "https://" + parts[0] + "/" + parts[1]
	default:
		return ""
	}
}
