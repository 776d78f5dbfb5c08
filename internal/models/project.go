package models

import "time"

// MemberRole is a project member's role.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// Project represents a managed project backed by one GitHub repository.
type Project struct {
	ID           string
	Name         string
	RepoFullname string // "owner/repo"
	OwnerID      string // user ID of the single project owner
	SprintUnit   int    // sprint length in days
	StartDate    time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProjectMember links a user to a project with a role.
type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      MemberRole
}

// IssueSummary aggregates open/closed counts for a project's issues.
type IssueSummary struct {
	Opened int `json:"opened_issues"`
	Closed int `json:"closed_issues"`
	All    int `json:"all_issues"`
}
