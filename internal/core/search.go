package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/barysiuk/skillsmd/internal/logger"
)

// DefaultSearchURL is the public skill index.
const DefaultSearchURL = "https://skills.sh"

const defaultSearchLimit = 10

// SearchResult is one skill returned by the search index.
type SearchResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Source   string `json:"source"`
	Installs int    `json:"installs"`
}

// InstallSource returns the string to pass to `add` for this result.
func (r SearchResult) InstallSource() string {
	if r.Source == "" {
		return r.Name
	}
	return r.Source + "@" + r.Name
}

type searchResponse struct {
	Skills []struct {
		ID        string `json:"id"`
		SkillID   string `json:"skillId"`
		Name      string `json:"name"`
		Source    string `json:"source"`
		TopSource string `json:"topSource"`
		Installs  int    `json:"installs"`
	} `json:"skills"`
}

// SearchClient queries the skill search index.
type SearchClient struct {
	BaseURL  string
	HTTP     *http.Client
	Attempts uint
}

// NewSearchClient creates a SearchClient for baseURL.
func NewSearchClient(baseURL string) *SearchClient {
	if baseURL == "" {
		baseURL = DefaultSearchURL
	}
	return &SearchClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Attempts: 3,
	}
}

// errSearchStatus marks a non-200 response; 5xx responses are retried.
type errSearchStatus struct {
	code int
}

func (e *errSearchStatus) Error() string {
	return fmt.Sprintf("search API returned status %d", e.code)
}

// Search returns up to limit skills matching query.
func (c *SearchClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	apiURL, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/api/search")
	if err != nil {
		return nil, fmt.Errorf("parsing search URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	apiURL.RawQuery = params.Encode()

	attempts := c.Attempts
	if attempts == 0 {
		attempts = 1
	}

	var resp searchResponse
	err = retry.Do(
		func() error {
			return c.get(ctx, apiURL.String(), &resp)
		},
		retry.RetryIf(isRetryableSearchError),
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying skill search")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("searching skills: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Skills))
	for _, s := range resp.Skills {
		r := SearchResult{ID: s.ID, Name: s.Name, Source: s.Source, Installs: s.Installs}
		if r.ID == "" {
			r.ID = s.SkillID
		}
		if r.Source == "" {
			r.Source = s.TopSource
		}
		results = append(results, r)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (c *SearchClient) get(ctx context.Context, u string, out *searchResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &errSearchStatus{code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decoding search response: %w", err))
	}
	return nil
}

func isRetryableSearchError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *errSearchStatus
	if errors.As(err, &status) {
		return status.code >= 500 || status.code == http.StatusTooManyRequests
	}
	return true
}
