package github

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/go-github/v57/github"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/metadata"
)

// Issue is the domain view of a GitHub issue, with priority/iteration
// decoded from the hidden metadata block in the body.
type Issue struct {
	RepoFullname string   `json:"repo_fullname"`
	Number       int      `json:"issue_number"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Assignees    []string `json:"assignees"`
	Priority     string   `json:"priority"`
	Iteration    int      `json:"iteration"`
	Labels       []string `json:"labels"`
	Closed       bool     `json:"closed"`
}

// IssueRequest carries the writable fields for create/update. Priority
// and Iteration are embedded into the body, never sent as native fields.
type IssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees"`
	Labels    []string `json:"labels"`
	Priority  string   `json:"priority"`
	Iteration int      `json:"iteration"`
}

// fromAPI converts a go-github issue into the domain view. It returns
// nil for pull requests: issues and PRs share the REST endpoint, and a
// PR-shaped object is not an issue here.
func fromAPI(repoFullname string, gh *github.Issue) *Issue {
	if gh == nil || gh.PullRequestLinks != nil {
		return nil
	}

	priority, iteration := metadata.Decode(gh.GetBody())

	issue := &Issue{
		RepoFullname: repoFullname,
		Number:       gh.GetNumber(),
		Title:        gh.GetTitle(),
		Body:         gh.GetBody(),
		Priority:     priority,
		Iteration:    iteration,
		Closed:       gh.GetState() == "closed",
	}
	for _, a := range gh.Assignees {
		issue.Assignees = append(issue.Assignees, a.GetLogin())
	}
	for _, l := range gh.Labels {
		issue.Labels = append(issue.Labels, l.GetName())
	}
	return issue
}

func toAPI(req IssueRequest) (*github.IssueRequest, error) {
	body := req.Body
	// The unknown sentinel marks an issue whose body carries no metadata
	// block. It is read-side only: writing such an issue back leaves the
	// body untracked instead of inventing a priority for it.
	if req.Priority != metadata.PriorityUnknown {
		encoded, err := metadata.Encode(req.Body, req.Priority, req.Iteration)
		if err != nil {
			return nil, err
		}
		body = encoded
	}
	assignees := req.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	labels := req.Labels
	if labels == nil {
		labels = []string{}
	}
	return &github.IssueRequest{
		Title:     github.String(req.Title),
		Body:      github.String(body),
		Assignees: &assignees,
		Labels:    &labels,
	}, nil
}

// RepoExists checks that the repository is reachable with this token.
func (c *Client) RepoExists(ctx context.Context, repoFullname string) (bool, error) {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return false, err
	}

	var exists bool
	err = c.withRetry(ctx, "repo_exists", func(ctx context.Context) error {
		_, resp, err := c.api.Repositories.Get(ctx, owner, repo)
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			exists = false
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, apiError(err)
	}
	return exists, nil
}

// CreateIssue creates a GitHub issue with the metadata block embedded.
func (c *Client) CreateIssue(ctx context.Context, repoFullname string, req IssueRequest) (*Issue, error) {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return nil, err
	}
	apiReq, err := toAPI(req)
	if err != nil {
		return nil, err
	}

	var created *github.Issue
	err = c.withRetry(ctx, "create_issue", func(ctx context.Context) error {
		issue, _, err := c.api.Issues.Create(ctx, owner, repo, apiReq)
		if err != nil {
			return err
		}
		created = issue
		return nil
	})
	if err != nil {
		return nil, apiError(err)
	}

	c.logger.Info("created issue", "repo", repoFullname, "number", created.GetNumber())
	return fromAPI(repoFullname, created), nil
}

// GetIssue fetches one issue. A pull request at that number is reported
// as not found.
func (c *Client) GetIssue(ctx context.Context, repoFullname string, number int) (*Issue, error) {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return nil, err
	}

	var fetched *github.Issue
	err = c.withRetry(ctx, "get_issue", func(ctx context.Context) error {
		issue, _, err := c.api.Issues.Get(ctx, owner, repo, number)
		if err != nil {
			return err
		}
		fetched = issue
		return nil
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, apperr.IssueNotFound(number)
		}
		return nil, apiError(err)
	}

	issue := fromAPI(repoFullname, fetched)
	if issue == nil {
		return nil, apperr.IssueNotFound(number)
	}
	return issue, nil
}

// ListIssues returns every issue in the repository, open and closed,
// silently excluding pull requests.
func (c *Client) ListIssues(ctx context.Context, repoFullname string) ([]*Issue, error) {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return nil, err
	}

	var issues []*Issue
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		var page []*github.Issue
		var next int
		err = c.withRetry(ctx, "list_issues", func(ctx context.Context) error {
			list, resp, err := c.api.Issues.ListByRepo(ctx, owner, repo, opts)
			if err != nil {
				return err
			}
			page = list
			next = resp.NextPage
			return nil
		})
		if err != nil {
			return nil, apiError(err)
		}

		for _, gh := range page {
			if issue := fromAPI(repoFullname, gh); issue != nil {
				issues = append(issues, issue)
			}
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}
	return issues, nil
}

// UpdateIssue edits an issue, re-encoding the metadata block into the
// submitted body.
func (c *Client) UpdateIssue(ctx context.Context, repoFullname string, number int, req IssueRequest) (*Issue, error) {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return nil, err
	}
	apiReq, err := toAPI(req)
	if err != nil {
		return nil, err
	}

	var updated *github.Issue
	err = c.withRetry(ctx, "update_issue", func(ctx context.Context) error {
		issue, _, err := c.api.Issues.Edit(ctx, owner, repo, number, apiReq)
		if err != nil {
			return err
		}
		updated = issue
		return nil
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, apperr.IssueNotFound(number)
		}
		return nil, apiError(err)
	}

	c.logger.Info("updated issue", "repo", repoFullname, "number", number)
	return fromAPI(repoFullname, updated), nil
}

// CloseIssue closes an issue without touching its body or metadata.
func (c *Client) CloseIssue(ctx context.Context, repoFullname string, number int) error {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return err
	}

	state := "closed"
	err = c.withRetry(ctx, "close_issue", func(ctx context.Context) error {
		_, _, err := c.api.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{State: &state})
		return err
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return apperr.IssueNotFound(number)
		}
		return apiError(err)
	}

	c.logger.Info("closed issue", "repo", repoFullname, "number", number)
	return nil
}
