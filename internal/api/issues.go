package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/models"
)

func issueNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || n <= 0 {
		return 0, badRequest("issue number must be a positive integer")
	}
	return n, nil
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
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

	issues, err := s.gh.ListIssues(r.Context(), project.RepoFullname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// state=open|closed filters; default returns everything.
	switch r.URL.Query().Get("state") {
	case "open":
		issues = filterIssues(issues, false)
	case "closed":
		issues = filterIssues(issues, true)
	}
	writeJSON(w, http.StatusOK, issues)
}

func filterIssues(issues []*github.Issue, closed bool) []*github.Issue {
	out := issues[:0]
	for _, issue := range issues {
		if issue.Closed == closed {
			out = append(out, issue)
		}
	}
	return out
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
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
	number, err := issueNumber(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	issue, err := s.gh.GetIssue(r.Context(), project.RepoFullname, number)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
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

	var req github.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.Title == "" {
		s.writeError(w, r, badRequest("title is required"))
		return
	}
	if req.Priority == "" {
		req.Priority = "M"
	}

	issue, err := s.gh.CreateIssue(r.Context(), project.RepoFullname, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
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
	number, err := issueNumber(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req github.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}

	issue, err := s.gh.UpdateIssue(r.Context(), project.RepoFullname, number, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) closeIssue(w http.ResponseWriter, r *http.Request) {
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
	number, err := issueNumber(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.gh.CloseIssue(r.Context(), project.RepoFullname, number); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// issueSummary reports open/closed/all counts for the project's
// repository.
func (s *Server) issueSummary(w http.ResponseWriter, r *http.Request) {
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

	issues, err := s.gh.ListIssues(r.Context(), project.RepoFullname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary := models.IssueSummary{All: len(issues)}
	for _, issue := range issues {
		if issue.Closed {
			summary.Closed++
		} else {
			summary.Opened++
		}
	}
	writeJSON(w, http.StatusOK, summary)
}
