package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, githubName string) *models.User {
	t.Helper()
	u := &models.User{Name: githubName, GitHubName: githubName}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedProject(t *testing.T, s *SQLiteStore, ownerID string) *models.Project {
	t.Helper()
	p := &models.Project{
		Name:         "test-project",
		RepoFullname: "acme/widgets",
		OwnerID:      ownerID,
		SprintUnit:   7,
		Active:       true,
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{
		Name:       "Alice Kim",
		GitHubName: "alicek",
		Field:      "Backend",
		Experience: "Junior",
	}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicek", got.GitHubName)
	assert.Nil(t, got.Profile)

	got, err = s.GetUserByGitHubName(ctx, "alicek")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got.Profile = &models.CompetencyProfile{
		Name:                "Alice Kim",
		Field:               "Backend",
		ProjectContribution: models.CompetencyScore{Score: 75, Justification: "core feature work"},
		Troubleshooting:     models.CompetencyScore{Score: 80, Justification: "frequent hotfixes"},
		ImplementedFeatures: []string{"User Authentication", "API Development"},
	}
	require.NoError(t, s.UpdateUser(ctx, got))

	got2, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got2.Profile)
	assert.Equal(t, 75, got2.Profile.ProjectContribution.Score)
	assert.Len(t, got2.Profile.ImplementedFeatures, 2)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUser(ctx, u.ID)
	assert.Equal(t, apperr.KindUserNotFound, apperr.KindOf(err))
}

func TestListUsersByGitHubNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	seedUser(t, s, "carol")

	users, err := s.ListUsersByGitHubNames(ctx, []string{"alice", "carol", "nobody"})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = s.ListUsersByGitHubNames(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, users)
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "owner")
	p := seedProject(t, s, owner.ID)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.StartDate.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", got.RepoFullname)
	assert.True(t, got.Active)

	got.Active = false
	require.NoError(t, s.UpdateProject(ctx, got))

	projects, err := s.ListProjects(ctx, false)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	projects, err = s.ListProjects(ctx, true)
	require.NoError(t, err)
	assert.Len(t, projects, 0)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetProject(ctx, p.ID)
	assert.Equal(t, apperr.KindProjectNotFound, apperr.KindOf(err))
}

func TestMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "owner")
	member := seedUser(t, s, "member")
	p := seedProject(t, s, owner.ID)

	ok, err := s.IsMember(ctx, p.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddMember(ctx, &models.ProjectMember{ProjectID: p.ID, UserID: member.ID}))

	ok, err = s.IsMember(ctx, p.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := s.ListMembers(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, models.RoleMember, members[0].Role)

	projects, err := s.ListProjectsForUser(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	require.NoError(t, s.RemoveMember(ctx, p.ID, member.ID))
	ok, err = s.IsMember(ctx, p.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRescheduleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "owner")
	p := seedProject(t, s, owner.ID)

	r := &models.RescheduleRequest{
		ProjectID:    p.ID,
		IssueNumber:  42,
		RequesterID:  owner.ID,
		Reason:       "dependency slipped",
		NewIteration: 3,
		NewAssignees: []string{"alice", "bob"},
	}
	require.NoError(t, s.CreateReschedule(ctx, r))
	assert.NotEmpty(t, r.ID)

	got, err := s.GetReschedule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.NewAssignees)

	got, err = s.GetRescheduleByIssue(ctx, p.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	// Both lookup conditions must hold, not just the issue number.
	got, err = s.GetRescheduleByIssue(ctx, "other-project", 42)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = s.GetRescheduleByIssue(ctx, p.ID, 99)
	require.NoError(t, err)
	assert.Nil(t, got)

	r.Reason = "updated reason"
	r.NewAssignees = []string{"carol"}
	require.NoError(t, s.UpdateReschedule(ctx, r))
	got, err = s.GetReschedule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated reason", got.Reason)
	assert.Equal(t, []string{"carol"}, got.NewAssignees)

	reqs, err := s.ListReschedules(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)

	require.NoError(t, s.DeleteReschedule(ctx, r.ID))
	_, err = s.GetReschedule(ctx, r.ID)
	assert.True(t, errors.Is(err, apperr.RescheduleNotFound(r.ID)))
}

func TestCreateReschedule_DuplicatePending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "owner")
	p := seedProject(t, s, owner.ID)

	first := &models.RescheduleRequest{ProjectID: p.ID, IssueNumber: 42, RequesterID: owner.ID, NewIteration: 2}
	require.NoError(t, s.CreateReschedule(ctx, first))

	dup := &models.RescheduleRequest{ProjectID: p.ID, IssueNumber: 42, RequesterID: owner.ID, NewIteration: 5}
	err := s.CreateReschedule(ctx, dup)
	assert.Equal(t, apperr.KindRescheduleExists, apperr.KindOf(err))

	// A different issue in the same project is fine.
	other := &models.RescheduleRequest{ProjectID: p.ID, IssueNumber: 43, RequesterID: owner.ID, NewIteration: 2}
	assert.NoError(t, s.CreateReschedule(ctx, other))

	// After the pending request is deleted, a new one may be created.
	require.NoError(t, s.DeleteReschedule(ctx, first.ID))
	again := &models.RescheduleRequest{ProjectID: p.ID, IssueNumber: 42, RequesterID: owner.ID, NewIteration: 6}
	assert.NoError(t, s.CreateReschedule(ctx, again))
}

func TestDeleteProject_CascadesReschedules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "owner")
	p := seedProject(t, s, owner.ID)

	r := &models.RescheduleRequest{ProjectID: p.ID, IssueNumber: 1, RequesterID: owner.ID, NewIteration: 2}
	require.NoError(t, s.CreateReschedule(ctx, r))

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	reqs, err := s.ListReschedules(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, reqs, 0)
}
