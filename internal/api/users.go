package api

import (
	"encoding/json"
	"net/http"

	"github.com/devpilot-kr/devpilot/internal/models"
)

// userView hides the access token from API responses.
type userView struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	GitHubName string                    `json:"github_name"`
	Field      string                    `json:"field,omitempty"`
	Experience string                    `json:"experience,omitempty"`
	Profile    *models.CompetencyProfile `json:"profile,omitempty"`
}

func toUserView(u *models.User) userView {
	return userView{
		ID:         u.ID,
		Name:       u.Name,
		GitHubName: u.GitHubName,
		Field:      u.Field,
		Experience: u.Experience,
		Profile:    u.Profile,
	}
}

type userRequest struct {
	Name              string `json:"name"`
	GitHubName        string `json:"github_name"`
	GitHubAccessToken string `json:"github_access_token"`
	Field             string `json:"field"`
	Experience        string `json:"experience"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.Name == "" || req.GitHubName == "" {
		s.writeError(w, r, badRequest("name and github_name are required"))
		return
	}

	user := &models.User{
		Name:              req.Name,
		GitHubName:        req.GitHubName,
		GitHubAccessToken: req.GitHubAccessToken,
		Field:             req.Field,
		Experience:        req.Experience,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(user))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.GitHubName != "" {
		user.GitHubName = req.GitHubName
	}
	if req.GitHubAccessToken != "" {
		user.GitHubAccessToken = req.GitHubAccessToken
	}
	if req.Field != "" {
		user.Field = req.Field
	}
	if req.Experience != "" {
		user.Experience = req.Experience
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// assessUser runs the competency assessment over the given repositories
// and persists the resulting profile on the user.
func (s *Server) assessUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req struct {
		Repos []string `json:"repos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid JSON"))
		return
	}
	if len(req.Repos) == 0 {
		s.writeError(w, r, badRequest("repos is required"))
		return
	}

	profile, err := s.pipeline.AssessCompetency(r.Context(), user, req.Repos)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user.Profile = profile
	if profile.Field != "" {
		user.Field = profile.Field
	}
	if profile.Experience != "" {
		user.Experience = profile.Experience
	}
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}
