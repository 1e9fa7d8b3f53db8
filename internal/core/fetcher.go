package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/barysiuk/skillsmd/internal/logger"
)

// FetchResult is a source materialized on the local filesystem.
type FetchResult struct {
	Root    string // Directory to run discovery against
	Version string // Commit hash for git sources, dirhash of the tree for local ones

	// Cleanup releases temporary files. It is safe to call more than once.
	Cleanup func()
}

func (r *FetchResult) release() {
	if r != nil && r.Cleanup != nil {
		r.Cleanup()
	}
}

// SourceFetcher materializes a SourceDescriptor locally.
type SourceFetcher interface {
	Fetch(ctx context.Context, src *SourceDescriptor) (*FetchResult, error)
}

// NewFetcher returns the default fetcher stack: git and local dispatch,
// retried up to attempts times on transient failures. A positive timeout
// bounds each source fetch including its retries.
func NewFetcher(attempts uint, timeout time.Duration) SourceFetcher {
	return &RetryingFetcher{
		Fetcher:  &MultiFetcher{Git: &GitFetcher{}, Local: &LocalFetcher{}},
		Attempts: attempts,
		Delay:    500 * time.Millisecond,
		Timeout:  timeout,
	}
}

// MultiFetcher dispatches local sources to Local and everything else to Git.
type MultiFetcher struct {
	Git   SourceFetcher
	Local SourceFetcher
}

func (m *MultiFetcher) Fetch(ctx context.Context, src *SourceDescriptor) (*FetchResult, error) {
	if src.IsRemote() {
		return m.Git.Fetch(ctx, src)
	}
	return m.Local.Fetch(ctx, src)
}

// GitFetcher shallow-clones git sources into a temporary directory.
type GitFetcher struct {
	// TempDir is the parent for clone directories. Empty means os.TempDir().
	TempDir string
}

func (f *GitFetcher) Fetch(ctx context.Context, src *SourceDescriptor) (*FetchResult, error) {
	log := logger.G(ctx).WithField("source", src.Location)
	log.WithField("ref", src.Ref).Debug("cloning source")

	auth, err := buildAuthMethod(src.Location)
	if err != nil {
		return nil, ClassifyFetchError(*src, err)
	}

	refs := []plumbing.ReferenceName{""}
	if src.Ref != "" {
		refs = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(src.Ref),
			plumbing.NewTagReferenceName(src.Ref),
		}
	}

	var lastErr error
	for _, ref := range refs {
		dir, err := os.MkdirTemp(f.TempDir, "skillsmd-")
		if err != nil {
			return nil, fmt.Errorf("creating temp directory: %w", err)
		}

		repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           src.Location,
			Auth:          auth,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         1,
			Tags:          git.NoTags,
		})
		if err != nil {
			_ = os.RemoveAll(dir)
			lastErr = err
			if ref != "" && isRefNotFound(err) {
				log.WithField("ref", ref.String()).Debug("reference not found, trying next")
				continue
			}
			return nil, ClassifyFetchError(*src, err)
		}

		head, err := repo.Head()
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, ClassifyFetchError(*src, fmt.Errorf("reading HEAD: %w", err))
		}

		log.WithField("commit", head.Hash().String()).Debug("cloned source")
		return &FetchResult{
			Root:    dir,
			Version: head.Hash().String(),
			Cleanup: func() { _ = os.RemoveAll(dir) },
		}, nil
	}

	return nil, ClassifyFetchError(*src, fmt.Errorf("ref %q not found: %w", src.Ref, lastErr))
}

func isRefNotFound(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, git.NoMatchingRefSpecError{})
}

// LocalFetcher serves local directories in place.
type LocalFetcher struct{}

func (f *LocalFetcher) Fetch(ctx context.Context, src *SourceDescriptor) (*FetchResult, error) {
	if !dirExists(src.Location) {
		return nil, &FetchError{
			Kind:   FetchErrNotFound,
			Source: *src,
			Err:    fmt.Errorf("%s is not a directory", src.Location),
			Hints:  hintsForError(FetchErrNotFound, "", src.Location),
		}
	}

	version, err := hashDir(src.Location)
	if err != nil {
		return nil, ClassifyFetchError(*src, err)
	}
	logger.G(ctx).WithField("source", src.Location).Debug("using local source")

	return &FetchResult{Root: src.Location, Version: version, Cleanup: func() {}}, nil
}

// RetryingFetcher retries transient fetch failures. Auth and not-found
// failures are returned immediately.
type RetryingFetcher struct {
	Fetcher  SourceFetcher
	Attempts uint
	Delay    time.Duration
	Timeout  time.Duration
}

func (f *RetryingFetcher) Fetch(ctx context.Context, src *SourceDescriptor) (*FetchResult, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	attempts := f.Attempts
	if attempts == 0 {
		attempts = 1
	}

	var res *FetchResult
	err := retry.Do(
		func() error {
			r, err := f.Fetcher.Fetch(ctx, src)
			if err != nil {
				return err
			}
			res = r
			return nil
		},
		retry.RetryIf(isRetryableFetchError),
		retry.Attempts(attempts),
		retry.Delay(f.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).WithField("max_attempts", attempts).Warn("retrying fetch")
		}),
	)
	if err != nil {
		if _, ok := AsFetchError(err); !ok && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return nil, ClassifyFetchError(*src, err)
		}
		return nil, err
	}
	return res, nil
}

func isRetryableFetchError(err error) bool {
	fe, ok := AsFetchError(err)
	return ok && fe.Retryable() && fe.Kind != FetchErrTimeout
}

// CachingFetcher memoizes results per source for the lifetime of one
// command. Failures are cached too so that one bad source is tried once.
type CachingFetcher struct {
	Fetcher SourceFetcher

	mu      sync.Mutex
	results map[string]cachedFetch
}

type cachedFetch struct {
	res *FetchResult
	err error
}

func (f *CachingFetcher) Fetch(ctx context.Context, src *SourceDescriptor) (*FetchResult, error) {
	key := cacheKey(src)

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.results[key]; ok {
		return c.res, c.err
	}
	res, err := f.Fetcher.Fetch(ctx, src)
	if f.results == nil {
		f.results = make(map[string]cachedFetch)
	}
	f.results[key] = cachedFetch{res: res, err: err}
	return res, err
}

// Close releases every cached result.
func (f *CachingFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.results {
		c.res.release()
	}
	f.results = nil
}

// cacheKey ignores the subpath: one clone serves every subpath of a repository.
func cacheKey(src *SourceDescriptor) string {
	return string(src.Provider) + "|" + src.Location + "#" + src.Ref
}
