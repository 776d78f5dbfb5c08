package models

import "time"

// CompetencyScore is one scored dimension of a user's competency profile.
type CompetencyScore struct {
	Score         int    `json:"score"`
	Justification string `json:"justification"`
}

// CompetencyProfile is the LLM-assessed competency profile stored per user.
// It feeds the assignee-recommendation and reschedule-feedback prompts.
type CompetencyProfile struct {
	Name                string          `json:"name"`
	Field               string          `json:"field"`
	Experience          string          `json:"experience"`
	ProjectContribution CompetencyScore `json:"project_contribution"`
	Troubleshooting     CompetencyScore `json:"troubleshooting"`
	ImplementedFeatures []string        `json:"implemented_features"`
}

// User represents a registered team member.
type User struct {
	ID                string
	Name              string
	GitHubName        string
	GitHubAccessToken string `json:"-"`
	Field             string
	Experience        string
	Profile           *CompetencyProfile
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
