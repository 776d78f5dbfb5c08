package reschedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/metadata"
	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/store"
)

// issuePatch is the slice of the PATCH payload these tests care about.
type issuePatch struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees"`
}

// ghFixture runs the service against the real GitHub adapter backed by
// an httptest server, so approval writes go through the metadata codec
// instead of a fake client.
type ghFixture struct {
	svc     *Service
	store   store.Store
	owner   *models.User
	proj    *models.Project
	patches map[int]issuePatch
}

func newGHFixture(t *testing.T, issueBodies map[int]string) *ghFixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })

	owner := &models.User{Name: "Owner", GitHubName: "owner"}
	require.NoError(t, s.CreateUser(ctx, owner))
	proj := &models.Project{Name: "proj", RepoFullname: "acme/widgets", OwnerID: owner.ID, SprintUnit: 7, Active: true}
	require.NoError(t, s.CreateProject(ctx, proj))

	bodies := make(map[int]string, len(issueBodies))
	for n, b := range issueBodies {
		bodies[n] = b
	}
	assignees := map[int][]string{}
	patches := map[int]issuePatch{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/issues/{number}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("number"))
		body, ok := bodies[n]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
			return
		}
		as := []map[string]string{}
		for _, a := range assignees[n] {
			as = append(as, map[string]string{"login": a})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"number": n, "title": "issue " + strconv.Itoa(n), "body": body,
			"state": "open", "assignees": as,
		})
	})
	mux.HandleFunc("PATCH /api/v3/repos/acme/widgets/issues/{number}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("number"))
		var patch issuePatch
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &patch))
		patches[n] = patch
		bodies[n] = patch.Body
		assignees[n] = patch.Assignees
		json.NewEncoder(w).Encode(map[string]any{
			"number": n, "title": patch.Title, "body": patch.Body, "state": "open",
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	gh, err := github.NewWithBaseURL("test-token", server.URL, nil)
	require.NoError(t, err)

	return &ghFixture{
		svc:     NewService(s, gh, nil),
		store:   s,
		owner:   owner,
		proj:    proj,
		patches: patches,
	}
}

func (f *ghFixture) approve(t *testing.T, issueNumber, newIteration int, newAssignees []string) {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner.ID, f.proj.ID, Request{
		IssueNumber:  issueNumber,
		NewIteration: newIteration,
		NewAssignees: newAssignees,
	})
	require.NoError(t, err)
	record, err := f.store.GetRescheduleByIssue(ctx, f.proj.ID, issueNumber)
	require.NoError(t, err)

	require.NoError(t, f.svc.Resolve(ctx, f.owner.ID, record.ID, models.DecisionApproved))

	got, err := f.store.GetRescheduleByIssue(ctx, f.proj.ID, issueNumber)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_ApprovedEncodesBodyOnWire(t *testing.T) {
	body, err := metadata.Encode("fix the widget", "M", 1)
	require.NoError(t, err)
	f := newGHFixture(t, map[int]string{42: body})

	f.approve(t, 42, 3, []string{"owner"})

	patch, ok := f.patches[42]
	require.True(t, ok, "no PATCH reached the server")
	p, i := metadata.Decode(patch.Body)
	assert.Equal(t, "M", p)
	assert.Equal(t, 3, i)
	assert.Equal(t, 1, strings.Count(patch.Body, "<!--"))
	assert.Equal(t, []string{"owner"}, patch.Assignees)
}

func TestResolve_ApprovedUntrackedIssueOnWire(t *testing.T) {
	f := newGHFixture(t, map[int]string{7: "created outside devpilot"})

	f.approve(t, 7, 3, []string{"owner"})

	// The body has no metadata block and the write must not invent one:
	// assignees change, the body passes through untouched.
	patch, ok := f.patches[7]
	require.True(t, ok, "no PATCH reached the server")
	assert.Equal(t, "created outside devpilot", patch.Body)
	assert.NotContains(t, patch.Body, "<!--")
	assert.Equal(t, []string{"owner"}, patch.Assignees)
}
