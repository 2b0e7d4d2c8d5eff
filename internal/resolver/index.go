package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/railwayapp/stevedore/internal/manifest"
)

// DefaultIndexURL is the PyPI JSON API root.
const DefaultIndexURL = "https://pypi.org/pypi"

// Index resolves requirements against a PyPI-compatible JSON API, picking
// the highest release that satisfies each constraint. Yanked releases and
// pre-releases are skipped.
type Index struct {
	baseURL     string
	client      *http.Client
	concurrency int
}

type IndexOption func(*Index)

func WithBaseURL(u string) IndexOption {
	return func(i *Index) { i.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) IndexOption {
	return func(i *Index) { i.client = c }
}

// WithConcurrency bounds the number of concurrent index lookups.
func WithConcurrency(n int) IndexOption {
	return func(i *Index) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

func NewIndex(opts ...IndexOption) *Index {
	i := &Index{
		baseURL:     DefaultIndexURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type releaseFile struct {
	Yanked bool `json:"yanked"`
}

type projectResponse struct {
	Releases map[string][]releaseFile `json:"releases"`
}

func (i *Index) Name() string {
	return "index:" + i.baseURL
}

func (i *Index) Resolve(ctx context.Context, reqs []manifest.Requirement) ([]Pinned, error) {
	pinned := make([]Pinned, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for n, req := range reqs {
		if req.URL != "" {
			pinned[n] = Pinned{Name: req.Name, URL: req.URL}
			continue
		}
		g.Go(func() error {
			version, err := i.resolveOne(ctx, req)
			if err != nil {
				return err
			}
			pinned[n] = Pinned{Name: req.Name, Version: version, Constraint: req.Constraint}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pinned, nil
}

func (i *Index) resolveOne(ctx context.Context, req manifest.Requirement) (string, error) {
	var constraint *semver.Constraints
	if req.Constraint != "" {
		c, err := manifest.Constraint(req.Constraint)
		if err != nil {
			return "", &ResolutionError{Name: req.Name, Constraint: req.Constraint, Reason: err.Error()}
		}
		constraint = c
	}

	project, err := i.fetch(ctx, req)
	if err != nil {
		return "", err
	}

	var best *semver.Version
	bestRaw := ""
	for raw, files := range project.Releases {
		if len(files) == 0 || allYanked(files) {
			continue
		}
		v, err := manifest.Version(raw)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}

	if best == nil {
		return "", &ResolutionError{Name: req.Name, Constraint: req.Constraint, Reason: "no matching release"}
	}
	return bestRaw, nil
}

func (i *Index) fetch(ctx context.Context, req manifest.Requirement) (*projectResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/json", i.baseURL, url.PathEscape(manifest.CanonicalName(req.Name)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to query index for %s: %w", req.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ResolutionError{Name: req.Name, Constraint: req.Constraint, Reason: "not found on index"}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("index returned status %d for %s", resp.StatusCode, req.Name)
	}

	var project projectResponse
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return nil, fmt.Errorf("failed to decode index response for %s: %w", req.Name, err)
	}
	return &project, nil
}

func allYanked(files []releaseFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return false
		}
	}
	return true
}
