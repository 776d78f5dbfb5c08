package api

import (
	"encoding/json"
	"net/http"

	"github.com/devpilot-kr/devpilot/internal/models"
)

// agentGenerate runs the first two pipeline stages: defining features
// from planning documents, then drafting one issue per feature. Nothing
// touches GitHub here; the drafts go back to the caller for review.
func (s *Server) agentGenerate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.requireProjectAccess(r, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Documents string `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.Documents == "" {
		s.writeError(w, r, badRequest("documents is required"))
		return
	}

	features, err := s.pipeline.DefineFeatures(r.Context(), project, req.Documents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	drafts, err := s.pipeline.DraftIssues(r.Context(), project, req.Documents, features)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"features": features,
		"drafts":   drafts,
	})
}

func (s *Server) agentAssign(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.requireProjectAccess(r, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Drafts []models.IssueDraft `json:"drafts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if len(req.Drafts) == 0 {
		s.writeError(w, r, badRequest("drafts is required"))
		return
	}

	roster, err := s.roster(r.Context(), project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	assignments, err := s.pipeline.RecommendAssignees(r.Context(), project, req.Drafts, roster)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

// agentConfirm turns reviewed drafts into real GitHub issues. The
// assignees map uses draft titles as keys and GitHub logins as values.
func (s *Server) agentConfirm(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.requireProjectAccess(r, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Drafts    []models.IssueDraft `json:"drafts"`
		Assignees map[string][]string `json:"assignees"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if len(req.Drafts) == 0 {
		s.writeError(w, r, badRequest("drafts is required"))
		return
	}

	created, err := s.pipeline.ConfirmDrafts(r.Context(), project, req.Drafts, req.Assignees)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// agentFeedback asks the model for resolution options on a pending
// reschedule: a new assignee or a new sprint.
func (s *Server) agentFeedback(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.requireProjectAccess(r, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		IssueNumber int    `json:"issue_number"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.IssueNumber <= 0 || req.Reason == "" {
		s.writeError(w, r, badRequest("issue_number and reason are required"))
		return
	}

	issue, err := s.gh.GetIssue(r.Context(), project.RepoFullname, req.IssueNumber)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	roster, err := s.roster(r.Context(), project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	feedback, err := s.pipeline.Feedback(r.Context(), project, issue, req.Reason, roster)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedback)
}
