// Package mcp exposes the devpilot data layer as MCP tools, so editor
// agents can browse projects, manage issues, and drive the reschedule
// workflow over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/reschedule"
	"github.com/devpilot-kr/devpilot/internal/store"
)

// GitHubClient is the GitHub surface the tools call directly.
type GitHubClient interface {
	ListIssues(ctx context.Context, repoFullname string) ([]*github.Issue, error)
	CreateIssue(ctx context.Context, repoFullname string, req github.IssueRequest) (*github.Issue, error)
}

// Server wraps the devpilot data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	gh      GitHubClient
	resched *reschedule.Service
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, gh GitHubClient, resched *reschedule.Service) *Server {
	return &Server{store: s, gh: gh, resched: resched}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("devpilot", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.listReschedulesTool())
	srv.AddTool(s.createRescheduleTool())
	srv.AddTool(s.resolveRescheduleTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// resolveUser maps the tool's "user" argument (a GitHub login) to a
// registered user.
func (s *Server) resolveUser(ctx context.Context, githubName string) (*models.User, error) {
	return s.store.GetUserByGitHubName(ctx, githubName)
}

// resolveProject matches a project by exact name among the user's
// projects.
func (s *Server) resolveProject(ctx context.Context, userID, name string) (*models.Project, error) {
	projects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("project not found: %s", name)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// devpilot_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("devpilot_list_projects",
		mcp.WithDescription("List the projects the user owns or belongs to. Returns a JSON array with id, name, repo, sprint unit, and active flag."),
		mcp.WithString("user", mcp.Required(), mcp.Description("GitHub login of the acting user")),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	login, err := request.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user"), nil
	}
	user, err := s.resolveUser(ctx, login)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown user: %s", login)), nil
	}

	projects, err := s.store.ListProjectsForUser(ctx, user.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}

	type projectOut struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Repo       string `json:"repo"`
		SprintUnit int    `json:"sprint_unit"`
		Active     bool   `json:"active"`
	}
	out := make([]projectOut, len(projects))
	for i, p := range projects {
		out[i] = projectOut{ID: p.ID, Name: p.Name, Repo: p.RepoFullname, SprintUnit: p.SprintUnit, Active: p.Active}
	}
	return jsonResult(out)
}

// devpilot_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("devpilot_list_issues",
		mcp.WithDescription("List the GitHub issues of a project. Each issue has number, title, assignees, priority (M/S/C/W, U when untracked), iteration, labels, and state. Pull requests are excluded."),
		mcp.WithString("user", mcp.Required(), mcp.Description("GitHub login of the acting user")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("state", mcp.Description("Filter: open or closed. Default lists everything.")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, result := s.projectFromRequest(ctx, request)
	if result != nil {
		return result, nil
	}

	issues, err := s.gh.ListIssues(ctx, project.RepoFullname)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	switch request.GetString("state", "") {
	case "open":
		issues = filterByState(issues, false)
	case "closed":
		issues = filterByState(issues, true)
	}
	return jsonResult(issues)
}

func filterByState(issues []*github.Issue, closed bool) []*github.Issue {
	out := issues[:0]
	for _, issue := range issues {
		if issue.Closed == closed {
			out = append(out, issue)
		}
	}
	return out
}

// devpilot_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("devpilot_create_issue",
		mcp.WithDescription("Create a GitHub issue in a project. Priority is MoSCoW (M/S/C/W) and iteration is the sprint number; both are tracked in the issue body."),
		mcp.WithString("user", mcp.Required(), mcp.Description("GitHub login of the acting user")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("body", mcp.Description("Issue body in markdown")),
		mcp.WithString("priority", mcp.Description("M, S, C, or W. Defaults to M.")),
		mcp.WithNumber("iteration", mcp.Description("Sprint number. Defaults to 1.")),
		mcp.WithString("assignees", mcp.Description("Comma-separated GitHub logins")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, result := s.projectFromRequest(ctx, request)
	if result != nil {
		return result, nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	priority := request.GetString("priority", "M")
	iteration := request.GetInt("iteration", 1)
	var assignees []string
	for _, a := range strings.Split(request.GetString("assignees", ""), ",") {
		if a = strings.TrimSpace(a); a != "" {
			assignees = append(assignees, a)
		}
	}

	issue, err := s.gh.CreateIssue(ctx, project.RepoFullname, github.IssueRequest{
		Title:     title,
		Body:      request.GetString("body", ""),
		Assignees: assignees,
		Priority:  priority,
		Iteration: iteration,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	return jsonResult(issue)
}

// devpilot_list_reschedules
func (s *Server) listReschedulesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("devpilot_list_reschedules",
		mcp.WithDescription("List the pending reschedule requests of a project, joined with the current issue state (old vs proposed iteration and assignees)."),
		mcp.WithString("user", mcp.Required(), mcp.Description("GitHub login of the acting user")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
	)
	return tool, s.handleListReschedules
}

func (s *Server) handleListReschedules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, project, result := s.userAndProject(ctx, request)
	if result != nil {
		return result, nil
	}

	views, err := s.resched.List(ctx, user.ID, project.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reschedule requests: %v", err)), nil
	}
	return jsonResult(views)
}

// devpilot_create_reschedule
func (s *Server) createRescheduleTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("devpilot_create_reschedule",
		mcp.WithDescription("Propose rescheduling an issue: a new iteration and/or new assignees, with a reason. Only one pending request may exist per issue."),
		mcp.WithString("user", mcp.Required(), mcp.Description("GitHub login of the acting user")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithNumber("issue_number", mcp.Required(), mcp.Description("GitHub issue number")),
		mcp.WithString("reason", mcp.Description("Why the issue needs rescheduling (max 500 chars)")),
		mcp.WithNumber("new_iteration", mcp.Description("Proposed sprint number")),
		mcp.WithString("new_assignees", mcp.Description("Comma-separated GitHub logins to propose")),
	)
	return tool, s.handleCreateReschedule
}

func (s *Server) handleCreateReschedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, project, result := s.userAndProject(ctx, request)
	if result != nil {
		return result, nil
	}
	number, err := request.RequireInt("issue_number")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_number"), nil
	}

	var assignees []string
	for _, a := range strings.Split(request.GetString("new_assignees", ""), ",") {
		if a = strings.TrimSpace(a); a != "" {
			assignees = append(assignees, a)
		}
	}

	view, err := s.resched.Create(ctx, user.ID, project.ID, reschedule.Request{
		IssueNumber:  number,
		Reason:       request.GetString("reason", ""),
		NewIteration: request.GetInt("new_iteration", 0),
		NewAssignees: assignees,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create reschedule request: %v", err)), nil
	}
	return jsonResult(view)
}

// devpilot_resolve_reschedule
func (s *Server) resolveRescheduleTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("devpilot_resolve_reschedule",
		mcp.WithDescription("Resolve a pending reschedule request. APPROVED writes the new iteration and assignees to the GitHub issue; REJECTED discards the request."),
		mcp.WithString("user", mcp.Required(), mcp.Description("GitHub login of the acting user")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Reschedule request id")),
		mcp.WithString("decision", mcp.Required(), mcp.Description("APPROVED or REJECTED")),
	)
	return tool, s.handleResolveReschedule
}

func (s *Server) handleResolveReschedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	login, err := request.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user"), nil
	}
	user, err := s.resolveUser(ctx, login)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown user: %s", login)), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	decision, err := request.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: decision"), nil
	}

	if err := s.resched.Resolve(ctx, user.ID, id, models.Decision(decision)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve reschedule request: %v", err)), nil
	}
	return jsonResult(map[string]string{"id": id, "decision": decision})
}

// ---------------------------------------------------------------------------
// Shared request plumbing
// ---------------------------------------------------------------------------

func (s *Server) userAndProject(ctx context.Context, request mcp.CallToolRequest) (*models.User, *models.Project, *mcp.CallToolResult) {
	login, err := request.RequireString("user")
	if err != nil {
		return nil, nil, mcp.NewToolResultError("missing required parameter: user")
	}
	user, err := s.resolveUser(ctx, login)
	if err != nil {
		return nil, nil, mcp.NewToolResultError(fmt.Sprintf("unknown user: %s", login))
	}

	name, err := request.RequireString("project")
	if err != nil {
		return nil, nil, mcp.NewToolResultError("missing required parameter: project")
	}
	project, err := s.resolveProject(ctx, user.ID, name)
	if err != nil {
		return nil, nil, mcp.NewToolResultError(err.Error())
	}
	return user, project, nil
}

func (s *Server) projectFromRequest(ctx context.Context, request mcp.CallToolRequest) (*models.Project, *mcp.CallToolResult) {
	_, project, result := s.userAndProject(ctx, request)
	return project, result
}
