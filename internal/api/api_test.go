package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-kr/devpilot/internal/agent"
	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/llm"
	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/reschedule"
	"github.com/devpilot-kr/devpilot/internal/store"
)

// fakeGitHub backs the handlers, the agent pipeline, and the reschedule
// service in tests with one in-memory issue map.
type fakeGitHub struct {
	repos   map[string]bool
	issues  map[int]*github.Issue
	nextNum int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		repos:   map[string]bool{"acme/widgets": true},
		issues:  map[int]*github.Issue{},
		nextNum: 1,
	}
}

func (f *fakeGitHub) RepoExists(_ context.Context, repo string) (bool, error) {
	return f.repos[repo], nil
}

func (f *fakeGitHub) GetIssue(_ context.Context, _ string, number int) (*github.Issue, error) {
	issue, ok := f.issues[number]
	if !ok {
		return nil, apperr.IssueNotFound(number)
	}
	copied := *issue
	return &copied, nil
}

func (f *fakeGitHub) ListIssues(_ context.Context, _ string) ([]*github.Issue, error) {
	out := make([]*github.Issue, 0, len(f.issues))
	for n := 1; n < f.nextNum; n++ {
		if issue, ok := f.issues[n]; ok {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (f *fakeGitHub) CreateIssue(_ context.Context, repo string, req github.IssueRequest) (*github.Issue, error) {
	issue := &github.Issue{
		RepoFullname: repo,
		Number:       f.nextNum,
		Title:        req.Title,
		Body:         req.Body,
		Assignees:    req.Assignees,
		Labels:       req.Labels,
		Priority:     req.Priority,
		Iteration:    req.Iteration,
	}
	f.issues[f.nextNum] = issue
	f.nextNum++
	return issue, nil
}

func (f *fakeGitHub) UpdateIssue(_ context.Context, _ string, number int, req github.IssueRequest) (*github.Issue, error) {
	issue, ok := f.issues[number]
	if !ok {
		return nil, apperr.IssueNotFound(number)
	}
	issue.Title = req.Title
	issue.Body = req.Body
	issue.Assignees = req.Assignees
	issue.Labels = req.Labels
	issue.Priority = req.Priority
	issue.Iteration = req.Iteration
	return issue, nil
}

func (f *fakeGitHub) CloseIssue(_ context.Context, _ string, number int) error {
	issue, ok := f.issues[number]
	if !ok {
		return apperr.IssueNotFound(number)
	}
	issue.Closed = true
	return nil
}

func (f *fakeGitHub) ListActivity(_ context.Context, repo, _ string) (*github.Activity, error) {
	return &github.Activity{RepoFullname: repo}, nil
}

// scriptedCompleter replays canned responses for the agent endpoints.
type scriptedCompleter struct {
	responses []string
}

func (c *scriptedCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	if len(c.responses) == 0 {
		return "", fmt.Errorf("unexpected model call")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

var _ llm.Completer = (*scriptedCompleter)(nil)

type testAPI struct {
	server    *httptest.Server
	store     store.Store
	gh        *fakeGitHub
	completer *scriptedCompleter
	owner     *models.User
	member    *models.User
	outsider  *models.User
	project   *models.Project
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	gh := newFakeGitHub()
	completer := &scriptedCompleter{}
	pipeline := agent.NewPipeline(completer, gh, nil)
	resched := reschedule.NewService(st, gh, nil)

	owner := &models.User{Name: "Owner", GitHubName: "owner"}
	member := &models.User{Name: "Member", GitHubName: "member"}
	outsider := &models.User{Name: "Outsider", GitHubName: "outsider"}
	require.NoError(t, st.CreateUser(ctx, owner))
	require.NoError(t, st.CreateUser(ctx, member))
	require.NoError(t, st.CreateUser(ctx, outsider))

	project := &models.Project{Name: "widgets", RepoFullname: "acme/widgets", OwnerID: owner.ID, SprintUnit: 7, Active: true}
	require.NoError(t, st.CreateProject(ctx, project))
	require.NoError(t, st.AddMember(ctx, &models.ProjectMember{ProjectID: project.ID, UserID: member.ID}))

	srv := NewServer(st, gh, pipeline, resched, nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testAPI{
		server:    ts,
		store:     st,
		gh:        gh,
		completer: completer,
		owner:     owner,
		member:    member,
		outsider:  outsider,
		project:   project,
	}
}

// do issues a request as the given user and decodes the JSON response
// into out when out is non-nil.
func (a *testAPI) do(t *testing.T, method, path, userID string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCreateAndGetUser(t *testing.T) {
	a := newTestAPI(t)

	var created userView
	status := a.do(t, "POST", "/api/v1/users", "", map[string]string{
		"name": "Carol", "github_name": "carol", "github_access_token": "secret",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created.ID)

	// The token never leaves the API.
	var raw map[string]any
	status = a.do(t, "GET", "/api/v1/users/"+created.ID, "", nil, &raw)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, raw, "github_access_token")
	assert.Equal(t, "carol", raw["github_name"])
}

func TestCreateProject(t *testing.T) {
	a := newTestAPI(t)

	var created models.Project
	status := a.do(t, "POST", "/api/v1/projects", a.member.ID, map[string]any{
		"name": "gadgets", "repo_fullname": "acme/widgets", "start_date": "2026-03-01",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, a.member.ID, created.OwnerID)
	assert.Equal(t, 7, created.SprintUnit)
	assert.True(t, created.Active)
}

func TestCreateProject_UnknownRepo(t *testing.T) {
	a := newTestAPI(t)

	var body map[string]string
	status := a.do(t, "POST", "/api/v1/projects", a.owner.ID, map[string]any{
		"name": "ghost", "repo_fullname": "acme/ghost",
	}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "acme/ghost")
}

func TestProjectAccess(t *testing.T) {
	a := newTestAPI(t)
	path := "/api/v1/projects/" + a.project.ID

	t.Run("member reads", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, a.do(t, "GET", path, a.member.ID, nil, nil))
	})

	t.Run("outsider denied", func(t *testing.T) {
		var body map[string]string
		status := a.do(t, "GET", path, a.outsider.ID, nil, &body)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "permission_denied", body["kind"])
	})

	t.Run("member cannot update", func(t *testing.T) {
		status := a.do(t, "PUT", path, a.member.ID, map[string]any{"name": "hijack"}, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("missing caller header", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, a.do(t, "GET", path, "", nil, nil))
	})

	t.Run("unknown project", func(t *testing.T) {
		var body map[string]string
		status := a.do(t, "GET", "/api/v1/projects/nope", a.owner.ID, nil, &body)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "project_not_found", body["kind"])
	})
}

func TestMembership(t *testing.T) {
	a := newTestAPI(t)
	base := "/api/v1/projects/" + a.project.ID + "/members"

	status := a.do(t, "POST", base, a.owner.ID, map[string]string{"user_id": a.outsider.ID}, nil)
	require.Equal(t, http.StatusCreated, status)

	var members []userView
	require.Equal(t, http.StatusOK, a.do(t, "GET", base, a.outsider.ID, nil, &members))
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	// Roster includes the owner even without a membership row.
	assert.ElementsMatch(t, []string{"Owner", "Member", "Outsider"}, names)

	t.Run("non-owner cannot add", func(t *testing.T) {
		status := a.do(t, "POST", base, a.member.ID, map[string]string{"user_id": a.outsider.ID}, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("member can leave", func(t *testing.T) {
		status := a.do(t, "DELETE", base+"/"+a.outsider.ID, a.outsider.ID, nil, nil)
		assert.Equal(t, http.StatusNoContent, status)
	})
}

func TestIssueEndpoints(t *testing.T) {
	a := newTestAPI(t)
	base := "/api/v1/projects/" + a.project.ID + "/issues"

	var created github.Issue
	status := a.do(t, "POST", base, a.member.ID, map[string]any{
		"title": "build the widget", "body": "details", "iteration": 1,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "M", created.Priority)
	assert.Equal(t, 1, created.Number)

	a.do(t, "POST", base, a.member.ID, map[string]any{"title": "second", "priority": "S", "iteration": 2}, nil)
	require.Equal(t, http.StatusNoContent,
		a.do(t, "POST", fmt.Sprintf("%s/%d/close", base, created.Number), a.owner.ID, nil, nil))

	var open []github.Issue
	require.Equal(t, http.StatusOK, a.do(t, "GET", base+"?state=open", a.member.ID, nil, &open))
	require.Len(t, open, 1)
	assert.Equal(t, "second", open[0].Title)

	var summary models.IssueSummary
	require.Equal(t, http.StatusOK,
		a.do(t, "GET", "/api/v1/projects/"+a.project.ID+"/summary", a.member.ID, nil, &summary))
	assert.Equal(t, models.IssueSummary{Opened: 1, Closed: 1, All: 2}, summary)

	t.Run("unknown issue", func(t *testing.T) {
		var body map[string]string
		status := a.do(t, "GET", base+"/99", a.member.ID, nil, &body)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "issue_not_found", body["kind"])
	})

	t.Run("bad issue number", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, a.do(t, "GET", base+"/zero", a.member.ID, nil, nil))
	})
}

func TestRescheduleEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.gh.CreateIssue(context.Background(), "acme/widgets", github.IssueRequest{
		Title: "slipping", Priority: "M", Iteration: 1, Assignees: []string{"member"},
	})
	base := "/api/v1/projects/" + a.project.ID + "/reschedules"

	var view reschedule.View
	status := a.do(t, "POST", base, a.member.ID, map[string]any{
		"issue_number": 1, "reason": "blocked on upstream", "new_iteration": 2,
	}, &view)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 1, view.OldIteration)
	assert.Equal(t, 2, view.NewIteration)

	t.Run("duplicate pending conflicts", func(t *testing.T) {
		var body map[string]string
		status := a.do(t, "POST", base, a.owner.ID, map[string]any{"issue_number": 1, "new_iteration": 3}, &body)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "reschedule_exists", body["kind"])
	})

	t.Run("approve applies to issue", func(t *testing.T) {
		status := a.do(t, "POST", "/api/v1/reschedules/"+view.ID+"/resolve", a.owner.ID,
			map[string]string{"decision": "APPROVED"}, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2, a.gh.issues[1].Iteration)

		var views []reschedule.View
		require.Equal(t, http.StatusOK, a.do(t, "GET", base, a.owner.ID, nil, &views))
		assert.Empty(t, views)
	})

	t.Run("invalid decision", func(t *testing.T) {
		a.do(t, "POST", base, a.member.ID, map[string]any{"issue_number": 1, "new_iteration": 4}, &view)
		var body map[string]string
		status := a.do(t, "POST", "/api/v1/reschedules/"+view.ID+"/resolve", a.owner.ID,
			map[string]string{"decision": "MAYBE"}, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_decision", body["kind"])
	})
}

func TestAgentGenerateAndConfirm(t *testing.T) {
	a := newTestAPI(t)
	draft := models.IssueDraft{
		Type: "Backend", Name: "login", Description: "token login",
		Title: "[Feature]: login", Labels: []string{"✨ Feature"}, Sprint: 1,
		Body: []models.DraftSection{},
	}
	draftsJSON, err := json.Marshal([]models.IssueDraft{draft})
	require.NoError(t, err)

	a.completer.responses = []string{
		"```json\n[\"[Feat]: login\"]\n```",
		"```json\n" + string(draftsJSON) + "\n```",
	}

	var generated struct {
		Features []string            `json:"features"`
		Drafts   []models.IssueDraft `json:"drafts"`
	}
	status := a.do(t, "POST", "/api/v1/projects/"+a.project.ID+"/agent/generate", a.member.ID,
		map[string]string{"documents": "login design doc"}, &generated)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, generated.Drafts, 1)
	assert.Equal(t, []string{"[Feat]: login"}, generated.Features)

	var created []github.Issue
	status = a.do(t, "POST", "/api/v1/projects/"+a.project.ID+"/agent/confirm", a.member.ID,
		map[string]any{
			"drafts":    generated.Drafts,
			"assignees": map[string][]string{"[Feature]: login": {"member"}},
		}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, created, 1)
	assert.Equal(t, []string{"member"}, created[0].Assignees)
	assert.Equal(t, 1, created[0].Iteration)
	assert.Equal(t, "M", created[0].Priority)
}

func TestAgentGenerate_ModelFailureIsBadGateway(t *testing.T) {
	a := newTestAPI(t)
	a.completer.responses = []string{"no fence here"}

	var body map[string]string
	status := a.do(t, "POST", "/api/v1/projects/"+a.project.ID+"/agent/generate", a.member.ID,
		map[string]string{"documents": "docs"}, &body)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "llm_malformed_response", body["kind"])
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)

	req, err := http.NewRequest("OPTIONS", a.server.URL+"/api/v1/projects", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
