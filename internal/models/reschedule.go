package models

import "time"

// Decision is the terminal outcome requested for a pending reschedule.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// Valid reports whether d is a recognized decision value.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// MaxRescheduleReasonLen bounds the free-text reason field.
const MaxRescheduleReasonLen = 500

// RescheduleRequest is a pending proposal to change an issue's iteration
// and/or assignees. At most one may exist per (project, issue) pair; the
// record is deleted when the proposal is approved or rejected.
type RescheduleRequest struct {
	ID           string
	ProjectID    string
	IssueNumber  int
	RequesterID  string
	Reason       string
	NewIteration int
	NewAssignees []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
