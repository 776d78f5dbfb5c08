package models

import "encoding/json"

// DraftSection is one structured section of a generated issue body,
// matching the GitHub issue-form layout the prompts instruct the model
// to fill in.
type DraftSection struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

// IssueDraft is an LLM-generated candidate issue. Drafts are never
// persisted; they become GitHub issues only after explicit confirmation.
type IssueDraft struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Title       string         `json:"title"`
	Labels      []string       `json:"labels"`
	Sprint      int            `json:"sprint"`
	Priority    string         `json:"priority,omitempty"`
	Body        []DraftSection `json:"body"`
}

// Assignment maps one drafted issue to its recommended assignees with
// per-developer justifications.
type Assignment struct {
	Issue       string   `json:"issue"`
	Assignee    string   `json:"assignee"`
	Description []string `json:"description"`
}

// FeedbackSuggestion is one of the two options produced for a reschedule
// request: a new assignee or a new sprint, each with a reason.
type FeedbackSuggestion struct {
	Name   string `json:"name,omitempty"`
	Sprint int    `json:"sprint,omitempty"`
	Reason string `json:"reason"`
}

// RescheduleFeedback is the model's advice for a pending reschedule.
type RescheduleFeedback struct {
	IssueNumber        int                `json:"issue_number"`
	ModificationReason string             `json:"modification_reason"`
	NewAssignee        FeedbackSuggestion `json:"new_assignee"`
	NewSprint          FeedbackSuggestion `json:"new_sprint"`
}
