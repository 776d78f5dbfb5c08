// Package api provides the REST surface of the devpilot backend. The
// caller is identified by the X-User-ID header; authentication itself
// is handled upstream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/devpilot-kr/devpilot/internal/agent"
	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/report"
	"github.com/devpilot-kr/devpilot/internal/reschedule"
	"github.com/devpilot-kr/devpilot/internal/store"
)

// GitHubClient is the GitHub surface the handlers call directly.
type GitHubClient interface {
	RepoExists(ctx context.Context, repoFullname string) (bool, error)
	GetIssue(ctx context.Context, repoFullname string, number int) (*github.Issue, error)
	ListIssues(ctx context.Context, repoFullname string) ([]*github.Issue, error)
	CreateIssue(ctx context.Context, repoFullname string, req github.IssueRequest) (*github.Issue, error)
	UpdateIssue(ctx context.Context, repoFullname string, number int, req github.IssueRequest) (*github.Issue, error)
	CloseIssue(ctx context.Context, repoFullname string, number int) error
}

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	gh       GitHubClient
	pipeline *agent.Pipeline
	resched  *reschedule.Service
	reporter *report.Reporter
	logger   *slog.Logger
}

// NewServer creates a new API server. reporter may be nil to disable
// error reporting.
func NewServer(s store.Store, gh GitHubClient, pipeline *agent.Pipeline, resched *reschedule.Service, reporter *report.Reporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = report.New("", logger)
	}
	return &Server{store: s, gh: gh, pipeline: pipeline, resched: resched, reporter: reporter, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/users", s.createUser)
	mux.HandleFunc("GET /api/v1/users/{id}", s.getUser)
	mux.HandleFunc("PUT /api/v1/users/{id}", s.updateUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", s.deleteUser)
	mux.HandleFunc("POST /api/v1/users/{id}/assess", s.assessUser)

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/projects", s.createProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("PUT /api/v1/projects/{id}", s.updateProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.deleteProject)

	mux.HandleFunc("GET /api/v1/projects/{id}/members", s.listMembers)
	mux.HandleFunc("POST /api/v1/projects/{id}/members", s.addMember)
	mux.HandleFunc("DELETE /api/v1/projects/{id}/members/{userID}", s.removeMember)

	mux.HandleFunc("GET /api/v1/projects/{id}/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/projects/{id}/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/projects/{id}/issues/{number}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/projects/{id}/issues/{number}", s.updateIssue)
	mux.HandleFunc("POST /api/v1/projects/{id}/issues/{number}/close", s.closeIssue)
	mux.HandleFunc("GET /api/v1/projects/{id}/summary", s.issueSummary)

	mux.HandleFunc("GET /api/v1/projects/{id}/reschedules", s.listReschedules)
	mux.HandleFunc("POST /api/v1/projects/{id}/reschedules", s.createReschedule)
	mux.HandleFunc("PUT /api/v1/projects/{id}/reschedules", s.updateReschedule)
	mux.HandleFunc("POST /api/v1/reschedules/{id}/resolve", s.resolveReschedule)

	mux.HandleFunc("POST /api/v1/projects/{id}/agent/generate", s.agentGenerate)
	mux.HandleFunc("POST /api/v1/projects/{id}/agent/assign", s.agentAssign)
	mux.HandleFunc("POST /api/v1/projects/{id}/agent/confirm", s.agentConfirm)
	mux.HandleFunc("POST /api/v1/projects/{id}/agent/feedback", s.agentFeedback)

	return corsMiddleware(s.logRequests(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(started).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status and stable kind.
// 5xx-class failures are additionally reported to the team webhook.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	body := map[string]string{"error": err.Error()}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body["kind"] = string(appErr.Kind)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.reporter.ServerError(r.URL.Path, status, err.Error())
	}
	writeJSON(w, status, body)
}

func badRequest(msg string) *apperr.Error {
	return apperr.New(apperr.KindInvalidRequest, http.StatusBadRequest, "%s", msg)
}

// callerID extracts the requesting user from the X-User-ID header.
func callerID(r *http.Request) (string, error) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return "", badRequest("missing X-User-ID header")
	}
	return id, nil
}

// requireProjectAccess loads the project and verifies the caller is its
// owner or a member.
func (s *Server) requireProjectAccess(r *http.Request, userID string) (*models.Project, error) {
	project, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if project.OwnerID == userID {
		return project, nil
	}
	ok, err := s.store.IsMember(r.Context(), project.ID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.PermissionDenied("not a member of this project")
	}
	return project, nil
}

// roster loads the project's members, owner included, with their
// competency profiles.
func (s *Server) roster(ctx context.Context, project *models.Project) ([]*models.User, error) {
	members, err := s.store.ListMembers(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	users := make([]*models.User, 0, len(members)+1)
	for _, m := range members {
		u, err := s.store.GetUser(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
		seen[u.ID] = true
	}
	if !seen[project.OwnerID] {
		owner, err := s.store.GetUser(ctx, project.OwnerID)
		if err != nil {
			return nil, err
		}
		users = append(users, owner)
	}
	return users, nil
}
