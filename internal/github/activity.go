package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
)

// Activity is a plain-text digest of one user's commits and pull
// requests in a repository, formatted for the competency-assessment
// prompt. Unstructured on purpose: the model reads it, nothing else.
type Activity struct {
	RepoFullname string
	Commits      int
	PullRequests int
	Digest       string
}

// maxActivityItems caps how much history goes into one digest so the
// assessment prompt stays bounded.
const maxActivityItems = 100

// ListActivity collects the user's commit messages and PR titles/bodies
// from one repository.
func (c *Client) ListActivity(ctx context.Context, repoFullname, githubName string) (*Activity, error) {
	owner, repo, err := splitRepo(repoFullname)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	activity := &Activity{RepoFullname: repoFullname}

	var commits []*github.RepositoryCommit
	err = c.withRetry(ctx, "list_commits", func(ctx context.Context) error {
		list, _, err := c.api.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
			Author:      githubName,
			ListOptions: github.ListOptions{PerPage: maxActivityItems},
		})
		if err != nil {
			return err
		}
		commits = list
		return nil
	})
	if err != nil {
		return nil, apiError(err)
	}

	sb.WriteString("## Commits\n")
	for _, commit := range commits {
		sb.WriteString("- ")
		sb.WriteString(strings.SplitN(commit.GetCommit().GetMessage(), "\n", 2)[0])
		sb.WriteString("\n")
	}
	activity.Commits = len(commits)

	var prs []*github.PullRequest
	err = c.withRetry(ctx, "list_pull_requests", func(ctx context.Context) error {
		list, _, err := c.api.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
			State:       "all",
			ListOptions: github.ListOptions{PerPage: maxActivityItems},
		})
		if err != nil {
			return err
		}
		prs = list
		return nil
	})
	if err != nil {
		return nil, apiError(err)
	}

	sb.WriteString("\n## Pull Requests\n")
	for _, pr := range prs {
		if pr.GetUser().GetLogin() != githubName {
			continue
		}
		fmt.Fprintf(&sb, "- #%d %s (%s)\n", pr.GetNumber(), pr.GetTitle(), pr.GetState())
		if body := strings.TrimSpace(pr.GetBody()); body != "" {
			sb.WriteString("  ")
			sb.WriteString(strings.SplitN(body, "\n", 2)[0])
			sb.WriteString("\n")
		}
		activity.PullRequests++
	}

	activity.Digest = sb.String()
	return activity, nil
}
