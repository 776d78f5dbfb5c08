package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/metadata"
)

// newTestClient wires a Client to a fake GitHub REST backend. The
// enterprise client prefixes paths with /api/v3.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := NewWithBaseURL("test-token", server.URL, slog.Default())
	require.NoError(t, err)
	return c
}

func issueJSON(number int, title, body string, assignees, labels []string, state string, isPR bool) map[string]any {
	m := map[string]any{
		"number": number,
		"title":  title,
		"body":   body,
		"state":  state,
	}
	var as []map[string]string
	for _, a := range assignees {
		as = append(as, map[string]string{"login": a})
	}
	m["assignees"] = as
	var ls []map[string]string
	for _, l := range labels {
		ls = append(ls, map[string]string{"name": l})
	}
	m["labels"] = ls
	if isPR {
		m["pull_request"] = map[string]string{"url": "https://example.invalid/pr"}
	}
	return m
}

func TestGetIssue_DecodesMetadata(t *testing.T) {
	body, err := metadata.Encode("issue body", "M", 2)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/42", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issueJSON(42, "the title", body, []string{"alice"}, []string{"bug"}, "open", false))
	})

	c := newTestClient(t, mux)
	issue, err := c.GetIssue(context.Background(), "acme/widgets", 42)
	require.NoError(t, err)

	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "the title", issue.Title)
	assert.Equal(t, "M", issue.Priority)
	assert.Equal(t, 2, issue.Iteration)
	assert.Equal(t, []string{"alice"}, issue.Assignees)
	assert.Equal(t, []string{"bug"}, issue.Labels)
	assert.False(t, issue.Closed)
}

func TestGetIssue_NoMetadataSentinels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issueJSON(7, "external issue", "created outside devpilot", nil, nil, "open", false))
	})

	c := newTestClient(t, mux)
	issue, err := c.GetIssue(context.Background(), "acme/widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, metadata.PriorityUnknown, issue.Priority)
	assert.Equal(t, metadata.IterationUnknown, issue.Iteration)
}

func TestGetIssue_PullRequestIsNotAnIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/5", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issueJSON(5, "a pr", "", nil, nil, "open", true))
	})

	c := newTestClient(t, mux)
	_, err := c.GetIssue(context.Background(), "acme/widgets", 5)
	assert.Equal(t, apperr.KindIssueNotFound, apperr.KindOf(err))
}

func TestGetIssue_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	c := newTestClient(t, mux)
	_, err := c.GetIssue(context.Background(), "acme/widgets", 404)
	assert.Equal(t, apperr.KindIssueNotFound, apperr.KindOf(err))
}

func TestCreateIssue_EmbedsMetadata(t *testing.T) {
	var received struct {
		Title     string   `json:"title"`
		Body      string   `json:"body"`
		Assignees []string `json:"assignees"`
		Labels    []string `json:"labels"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &received))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(issueJSON(10, received.Title, received.Body, received.Assignees, received.Labels, "open", false))
	})

	c := newTestClient(t, mux)
	issue, err := c.CreateIssue(context.Background(), "acme/widgets", IssueRequest{
		Title:     "new issue",
		Body:      "the body",
		Assignees: []string{"alice"},
		Labels:    []string{"✨ Feature"},
		Priority:  "S",
		Iteration: 1,
	})
	require.NoError(t, err)

	p, i := metadata.Decode(received.Body)
	assert.Equal(t, "S", p)
	assert.Equal(t, 1, i)
	assert.Equal(t, "S", issue.Priority)
	assert.Equal(t, 1, issue.Iteration)
}

func TestCreateIssue_InvalidPriority(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	_, err := c.CreateIssue(context.Background(), "acme/widgets", IssueRequest{
		Title: "bad", Priority: "X", Iteration: 1,
	})
	assert.Equal(t, apperr.KindInvalidPriority, apperr.KindOf(err))
}

func TestListIssues_FiltersPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			issueJSON(1, "real issue", "", nil, nil, "open", false),
			issueJSON(2, "a pr", "", nil, nil, "open", true),
			issueJSON(3, "closed issue", "", nil, nil, "closed", false),
		})
	})

	c := newTestClient(t, mux)
	issues, err := c.ListIssues(context.Background(), "acme/widgets")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Number)
	assert.Equal(t, 3, issues[1].Number)
	assert.True(t, issues[1].Closed)
}

func TestUpdateIssue_ReencodesMetadata(t *testing.T) {
	var receivedBody string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v3/repos/acme/widgets/issues/42", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Body string `json:"body"`
		}
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &req))
		receivedBody = req.Body
		json.NewEncoder(w).Encode(issueJSON(42, "t", req.Body, nil, nil, "open", false))
	})

	body, err := metadata.Encode("original", "M", 1)
	require.NoError(t, err)

	c := newTestClient(t, mux)
	issue, err := c.UpdateIssue(context.Background(), "acme/widgets", 42, IssueRequest{
		Title: "t", Body: body, Priority: "M", Iteration: 4,
	})
	require.NoError(t, err)

	p, i := metadata.Decode(receivedBody)
	assert.Equal(t, "M", p)
	assert.Equal(t, 4, i)
	assert.Equal(t, 4, issue.Iteration)
	// Re-encode replaces the block rather than stacking a second one.
	assert.Equal(t, 1, strings.Count(receivedBody, "<!--"))
}

func TestUpdateIssue_UntrackedBodyPassesThrough(t *testing.T) {
	var receivedBody string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v3/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Body string `json:"body"`
		}
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &req))
		receivedBody = req.Body
		json.NewEncoder(w).Encode(issueJSON(7, "t", req.Body, nil, nil, "open", false))
	})

	c := newTestClient(t, mux)
	_, err := c.UpdateIssue(context.Background(), "acme/widgets", 7, IssueRequest{
		Title:     "t",
		Body:      "created outside devpilot",
		Assignees: []string{"alice"},
		Priority:  metadata.PriorityUnknown,
		Iteration: 3,
	})
	require.NoError(t, err)

	// The unknown sentinel is never encoded: the body stays untracked.
	assert.Equal(t, "created outside devpilot", receivedBody)
	assert.NotContains(t, receivedBody, "<!--")
}

func TestCloseIssue(t *testing.T) {
	var state string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v3/repos/acme/widgets/issues/9", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			State string `json:"state"`
		}
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &req))
		state = req.State
		json.NewEncoder(w).Encode(issueJSON(9, "t", "", nil, nil, "closed", false))
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.CloseIssue(context.Background(), "acme/widgets", 9))
	assert.Equal(t, "closed", state)
}

func TestRepoExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"full_name": "acme/widgets"}`)
	})
	mux.HandleFunc("GET /api/v3/repos/acme/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	c := newTestClient(t, mux)
	ok, err := c.RepoExists(context.Background(), "acme/widgets")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.RepoExists(context.Background(), "acme/ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithRetry_TransientServerError(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/1", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message": "upstream hiccup"}`)
			return
		}
		json.NewEncoder(w).Encode(issueJSON(1, "t", "", nil, nil, "open", false))
	})

	c := newTestClient(t, mux)
	issue, err := c.GetIssue(context.Background(), "acme/widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, issue.Number)
	assert.Equal(t, 2, calls)
}

func TestAPIError_CarriesUpstreamStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Validation Failed"}`)
	})

	c := newTestClient(t, mux)
	_, err := c.GetIssue(context.Background(), "acme/widgets", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindGitHubAPI, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "422")
}
