package store

import (
	"context"

	"github.com/devpilot-kr/devpilot/internal/models"
)

// Store defines the persistence interface for devpilot.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByGitHubName(ctx context.Context, name string) (*models.User, error)
	ListUsersByGitHubNames(ctx context.Context, names []string) ([]*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error

	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Project membership
	AddMember(ctx context.Context, m *models.ProjectMember) error
	RemoveMember(ctx context.Context, projectID, userID string) error
	ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error)
	IsMember(ctx context.Context, projectID, userID string) (bool, error)

	// Reschedule requests. At most one pending request may exist per
	// (project, issue) pair; CreateReschedule fails on a duplicate.
	CreateReschedule(ctx context.Context, r *models.RescheduleRequest) error
	GetReschedule(ctx context.Context, id string) (*models.RescheduleRequest, error)
	GetRescheduleByIssue(ctx context.Context, projectID string, issueNumber int) (*models.RescheduleRequest, error)
	ListReschedules(ctx context.Context, projectID string) ([]*models.RescheduleRequest, error)
	UpdateReschedule(ctx context.Context, r *models.RescheduleRequest) error
	DeleteReschedule(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
