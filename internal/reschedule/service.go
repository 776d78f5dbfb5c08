// Package reschedule implements the request/approve/reject lifecycle for
// issue schedule changes. A request proposes a new iteration and/or
// assignees for one GitHub issue; the project owner or the requester
// resolves it, and approval writes the change back to GitHub.
package reschedule

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/metadata"
	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/store"
)

// IssueClient is the slice of the GitHub adapter this workflow needs.
type IssueClient interface {
	GetIssue(ctx context.Context, repoFullname string, number int) (*github.Issue, error)
	UpdateIssue(ctx context.Context, repoFullname string, number int, req github.IssueRequest) (*github.Issue, error)
}

// Service coordinates reschedule requests across the store and GitHub.
type Service struct {
	store  store.Store
	issues IssueClient
	logger *slog.Logger
}

// NewService builds the workflow with explicit collaborators.
func NewService(s store.Store, issues IssueClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, issues: issues, logger: logger}
}

// Request carries the caller-supplied fields of a reschedule proposal.
type Request struct {
	IssueNumber  int      `json:"issue_number"`
	Reason       string   `json:"reason"`
	NewIteration int      `json:"new_iteration"`
	NewAssignees []string `json:"new_assignees"`
}

// View joins a pending request with the current state of its issue, so
// reviewers see old and proposed values side by side.
type View struct {
	ID            string   `json:"id"`
	ProjectID     string   `json:"project_id"`
	IssueNumber   int      `json:"issue_number"`
	IssueTitle    string   `json:"issue_title"`
	RequesterName string   `json:"requester_name"`
	Reason        string   `json:"reason"`
	OldIteration  int      `json:"old_iteration"`
	OldAssignees  []string `json:"old_assignees"`
	NewIteration  int      `json:"new_iteration"`
	NewAssignees  []string `json:"new_assignees"`
}

func newView(r *models.RescheduleRequest, requester *models.User, issue *github.Issue) *View {
	return &View{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		IssueNumber:   r.IssueNumber,
		IssueTitle:    issue.Title,
		RequesterName: requester.Name,
		Reason:        r.Reason,
		OldIteration:  issue.Iteration,
		OldAssignees:  issue.Assignees,
		NewIteration:  r.NewIteration,
		NewAssignees:  r.NewAssignees,
	}
}

// checkAccess verifies the user is the project owner or a member.
func (s *Service) checkAccess(ctx context.Context, userID string, project *models.Project) error {
	if project.OwnerID == userID {
		return nil
	}
	ok, err := s.store.IsMember(ctx, project.ID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.PermissionDenied("only project members may manage reschedule requests")
	}
	return nil
}

// checkModify verifies the user is the project owner or the original
// requester of the record.
func checkModify(userID string, project *models.Project, r *models.RescheduleRequest) error {
	if userID != project.OwnerID && userID != r.RequesterID {
		return apperr.PermissionDenied("only the requester or the project owner may modify a reschedule request")
	}
	return nil
}

func validateRequest(req Request) error {
	if len(req.Reason) > models.MaxRescheduleReasonLen {
		return apperr.New(apperr.KindInvalidRequest, http.StatusBadRequest,
			"reason exceeds %d characters", models.MaxRescheduleReasonLen)
	}
	if req.NewIteration < 0 {
		return apperr.New(apperr.KindInvalidRequest, http.StatusBadRequest,
			"new iteration must be >= 0")
	}
	return nil
}

// Create registers a pending reschedule request. Exactly one may exist
// per (project, issue); the unique index backstops the lookup here, so
// two concurrent creates cannot both succeed.
func (s *Service) Create(ctx context.Context, userID, projectID string, req Request) (*View, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(ctx, userID, project); err != nil {
		return nil, err
	}

	requester, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetRescheduleByIssue(ctx, projectID, req.IssueNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.RescheduleExists(projectID, req.IssueNumber)
	}

	issue, err := s.issues.GetIssue(ctx, project.RepoFullname, req.IssueNumber)
	if err != nil {
		return nil, err
	}

	record := &models.RescheduleRequest{
		ProjectID:    projectID,
		IssueNumber:  req.IssueNumber,
		RequesterID:  requester.ID,
		Reason:       req.Reason,
		NewIteration: req.NewIteration,
		NewAssignees: req.NewAssignees,
	}
	if err := s.store.CreateReschedule(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("reschedule request created",
		"project_id", projectID, "issue", req.IssueNumber, "requester", requester.GitHubName)
	return newView(record, requester, issue), nil
}

// List returns every pending request for a project, joined with the
// current issue state.
func (s *Service) List(ctx context.Context, userID, projectID string) ([]*View, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(ctx, userID, project); err != nil {
		return nil, err
	}

	records, err := s.store.ListReschedules(ctx, projectID)
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(records))
	for _, record := range records {
		issue, err := s.issues.GetIssue(ctx, project.RepoFullname, record.IssueNumber)
		if err != nil {
			return nil, err
		}
		requester, err := s.store.GetUser(ctx, record.RequesterID)
		if err != nil {
			return nil, err
		}
		views = append(views, newView(record, requester, issue))
	}
	return views, nil
}

// Update modifies a pending request's reason, iteration, or assignees.
// Only the requester or the project owner may do so.
func (s *Service) Update(ctx context.Context, userID, projectID string, req Request) (*View, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	record, err := s.store.GetRescheduleByIssue(ctx, projectID, req.IssueNumber)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperr.New(apperr.KindRescheduleNotFound, http.StatusNotFound,
			"no pending reschedule request for issue #%d", req.IssueNumber)
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := checkModify(userID, project, record); err != nil {
		return nil, err
	}

	issue, err := s.issues.GetIssue(ctx, project.RepoFullname, req.IssueNumber)
	if err != nil {
		return nil, err
	}

	record.Reason = req.Reason
	record.NewIteration = req.NewIteration
	record.NewAssignees = req.NewAssignees
	if err := s.store.UpdateReschedule(ctx, record); err != nil {
		return nil, err
	}

	requester, err := s.store.GetUser(ctx, record.RequesterID)
	if err != nil {
		return nil, err
	}
	return newView(record, requester, issue), nil
}

// Resolve finishes a pending request. APPROVED writes the new iteration
// and assignees back to the issue, leaving title, body, priority, and
// labels untouched, then deletes the record. REJECTED deletes the record
// without touching GitHub.
func (s *Service) Resolve(ctx context.Context, userID, rescheduleID string, decision models.Decision) error {
	if !decision.Valid() {
		return apperr.InvalidDecision(string(decision))
	}

	record, err := s.store.GetReschedule(ctx, rescheduleID)
	if err != nil {
		return err
	}

	project, err := s.store.GetProject(ctx, record.ProjectID)
	if err != nil {
		return err
	}
	if err := checkModify(userID, project, record); err != nil {
		return err
	}

	if decision == models.DecisionApproved {
		if err := s.apply(ctx, project, record); err != nil {
			return err
		}
	}

	if err := s.store.DeleteReschedule(ctx, record.ID); err != nil {
		return err
	}

	s.logger.Info("reschedule request resolved",
		"project_id", record.ProjectID, "issue", record.IssueNumber, "decision", string(decision))
	return nil
}

// apply writes the approved change back to GitHub. The GitHub write and
// the record delete are not one transaction: if the delete fails after a
// successful write, the next apply sees the issue already carrying the
// new values and skips the write, so approval is at-least-once rather
// than exactly-once. An issue created outside devpilot has no metadata
// block; approving it updates the assignees and leaves the body
// untracked rather than failing.
func (s *Service) apply(ctx context.Context, project *models.Project, record *models.RescheduleRequest) error {
	issue, err := s.issues.GetIssue(ctx, project.RepoFullname, record.IssueNumber)
	if err != nil {
		return err
	}

	// An untracked issue (no metadata block) cannot persist an iteration,
	// so only the assignees tell us whether the change already landed.
	applied := sameLogins(issue.Assignees, record.NewAssignees)
	if issue.Priority != metadata.PriorityUnknown {
		applied = applied && issue.Iteration == record.NewIteration
	}
	if applied {
		s.logger.Info("reschedule already applied, skipping github write",
			"project_id", project.ID, "issue", record.IssueNumber)
		return nil
	}

	_, err = s.issues.UpdateIssue(ctx, project.RepoFullname, record.IssueNumber, github.IssueRequest{
		Title:     issue.Title,
		Body:      issue.Body,
		Assignees: record.NewAssignees,
		Labels:    issue.Labels,
		Priority:  issue.Priority,
		Iteration: record.NewIteration,
	})
	return err
}

func sameLogins(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
