package aspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Repository is the subset of a repository record the tools read.
type Repository struct {
	URI      string `json:"uri"`
	RepoCode string `json:"repo_code"`
}

// Job is the subset of a background job record the tools read.
type Job struct {
	URI     string `json:"uri"`
	JobType string `json:"job_type"`
	Status  string `json:"status"`
}

// jobPageSize is the largest page the backend serves.
const jobPageSize = 250

type jobPage struct {
	FirstPage int   `json:"first_page"`
	LastPage  int   `json:"last_page"`
	ThisPage  int   `json:"this_page"`
	Results   []Job `json:"results"`
}

// ListRepositories returns every repository.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	body, err := c.do(ctx, http.MethodGet, "/repositories", nil, nil)
	if err != nil {
		return nil, err
	}
	var repos []Repository
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, errors.Wrap(err, "failed to decode repositories")
	}
	return repos, nil
}

// ListJobs returns every job of a repository, following pagination.
func (c *Client) ListJobs(ctx context.Context, repoURI string) ([]Job, error) {
	var jobs []Job
	for page := 1; ; page++ {
		q := url.Values{
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(jobPageSize)},
		}
		body, err := c.do(ctx, http.MethodGet, repoURI+"/jobs", q, nil)
		if err != nil {
			return nil, err
		}
		var p jobPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, errors.Wrapf(err, "failed to decode jobs page %d", page)
		}
		jobs = append(jobs, p.Results...)
		if p.ThisPage >= p.LastPage || len(p.Results) == 0 {
			return jobs, nil
		}
	}
}
