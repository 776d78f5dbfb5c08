package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/models"
)

type projectRequest struct {
	Name         string `json:"name"`
	RepoFullname string `json:"repo_fullname"`
	SprintUnit   int    `json:"sprint_unit"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD
	Active       *bool  `json:"active"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	projects, err := s.store.ListProjectsForUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, project)
}

// createProject registers a project after verifying the repository is
// reachable with the configured token. The caller becomes the owner.
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.Name == "" || req.RepoFullname == "" {
		s.writeError(w, r, badRequest("name and repo_fullname are required"))
		return
	}
	if req.SprintUnit <= 0 {
		req.SprintUnit = 7
	}

	exists, err := s.gh.RepoExists(r.Context(), req.RepoFullname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !exists {
		s.writeError(w, r, badRequest("repository not found or not accessible: "+req.RepoFullname))
		return
	}

	project := &models.Project{
		Name:         req.Name,
		RepoFullname: req.RepoFullname,
		OwnerID:      userID,
		SprintUnit:   req.SprintUnit,
		Active:       true,
	}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			s.writeError(w, r, badRequest("start_date must be YYYY-MM-DD"))
			return
		}
		project.StartDate = start
	}

	if err := s.store.CreateProject(r.Context(), project); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if project.OwnerID != userID {
		s.writeError(w, r, apperr.PermissionDenied("only the project owner may update the project"))
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.Name != "" {
		project.Name = req.Name
	}
	if req.SprintUnit > 0 {
		project.SprintUnit = req.SprintUnit
	}
	if req.Active != nil {
		project.Active = *req.Active
	}

	if err := s.store.UpdateProject(r.Context(), project); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if project.OwnerID != userID {
		s.writeError(w, r, apperr.PermissionDenied("only the project owner may delete the project"))
		return
	}

	if err := s.store.DeleteProject(r.Context(), project.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Membership ---

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
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

	users, err := s.roster(r.Context(), project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if project.OwnerID != userID {
		s.writeError(w, r, apperr.PermissionDenied("only the project owner may add members"))
		return
	}

	var req struct {
		UserID string            `json:"user_id"`
		Role   models.MemberRole `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.UserID == "" {
		s.writeError(w, r, badRequest("user_id is required"))
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if _, err := s.store.GetUser(r.Context(), req.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}

	member := &models.ProjectMember{ProjectID: project.ID, UserID: req.UserID, Role: req.Role}
	if err := s.store.AddMember(r.Context(), member); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target := r.PathValue("userID")
	// Members may leave on their own; removing anyone else is owner-only.
	if project.OwnerID != userID && target != userID {
		s.writeError(w, r, apperr.PermissionDenied("only the project owner may remove other members"))
		return
	}

	if err := s.store.RemoveMember(r.Context(), project.ID, target); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
