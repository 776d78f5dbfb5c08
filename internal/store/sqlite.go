package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func marshalProfile(p *models.CompetencyProfile) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal competency profile: %w", err)
	}
	return string(data), nil
}

func unmarshalProfile(raw string) (*models.CompetencyProfile, error) {
	if raw == "" {
		return nil, nil
	}
	var p models.CompetencyProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal competency profile: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newULID()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	profile, err := marshalProfile(u.Profile)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, github_name, github_access_token, field, experience, profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.GitHubName, u.GitHubAccessToken, u.Field, u.Experience, profile, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row, notFoundID string) (*models.User, error) {
	u := &models.User{}
	var profile string
	err := row.Scan(&u.ID, &u.Name, &u.GitHubName, &u.GitHubAccessToken, &u.Field, &u.Experience, &profile, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.UserNotFound(notFoundID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Profile, err = unmarshalProfile(profile)
	if err != nil {
		return nil, err
	}
	return u, nil
}

const userColumns = "id, name, github_name, github_access_token, field, experience, profile, created_at, updated_at"

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return s.scanUser(row, id)
}

func (s *SQLiteStore) GetUserByGitHubName(ctx context.Context, name string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE github_name = ?", name)
	return s.scanUser(row, name)
}

func (s *SQLiteStore) ListUsersByGitHubNames(ctx context.Context, names []string) ([]*models.User, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE github_name IN ("+placeholders+") ORDER BY github_name", args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		var profile string
		if err := rows.Scan(&u.ID, &u.Name, &u.GitHubName, &u.GitHubAccessToken, &u.Field, &u.Experience, &profile, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if u.Profile, err = unmarshalProfile(profile); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	profile, err := marshalProfile(u.Profile)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET name=?, github_name=?, github_access_token=?, field=?, experience=?, profile=?, updated_at=? WHERE id=?`,
		u.Name, u.GitHubName, u.GitHubAccessToken, u.Field, u.Experience, profile, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.UserNotFound(u.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.UserNotFound(id)
	}
	return nil
}

// --- Projects ---

const projectColumns = "id, name, repo_fullname, owner_id, sprint_unit, start_date, active, created_at, updated_at"

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.StartDate.IsZero() {
		p.StartDate = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, repo_fullname, owner_id, sprint_unit, start_date, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.RepoFullname, p.OwnerID, p.SprintUnit, p.StartDate, boolToInt(p.Active), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanProject(row *sql.Row, notFoundID string) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(&p.ID, &p.Name, &p.RepoFullname, &p.OwnerID, &p.SprintUnit, &p.StartDate, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ProjectNotFound(notFoundID)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	return s.scanProject(row, id)
}

func (s *SQLiteStore) listProjects(rows *sql.Rows) ([]*models.Project, error) {
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.RepoFullname, &p.OwnerID, &p.SprintUnit, &p.StartDate, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) ListProjects(ctx context.Context, activeOnly bool) ([]*models.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return s.listProjects(rows)
}

func (s *SQLiteStore) ListProjectsForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		WHERE owner_id = ? OR id IN (SELECT project_id FROM project_users WHERE user_id = ?)
		ORDER BY name`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects for user: %w", err)
	}
	return s.listProjects(rows)
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name=?, repo_fullname=?, owner_id=?, sprint_unit=?, start_date=?, active=?, updated_at=? WHERE id=?`,
		p.Name, p.RepoFullname, p.OwnerID, p.SprintUnit, p.StartDate, boolToInt(p.Active), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.ProjectNotFound(p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.ProjectNotFound(id)
	}
	return nil
}

// --- Project membership ---

func (s *SQLiteStore) AddMember(ctx context.Context, m *models.ProjectMember) error {
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO project_users (project_id, user_id, role) VALUES (?, ?, ?)`,
		m.ProjectID, m.UserID, string(m.Role),
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveMember(ctx context.Context, projectID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM project_users WHERE project_id = ? AND user_id = ?", projectID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT project_id, user_id, role FROM project_users WHERE project_id = ? ORDER BY user_id", projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []*models.ProjectMember
	for rows.Next() {
		m := &models.ProjectMember{}
		var role string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = models.MemberRole(role)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM project_users WHERE project_id = ? AND user_id = ?", projectID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

// --- Reschedule requests ---

const rescheduleColumns = "id, project_id, issue_number, requester_id, reason, new_iteration, new_assignees, created_at, updated_at"

func marshalAssignees(assignees []string) (string, error) {
	if assignees == nil {
		assignees = []string{}
	}
	data, err := json.Marshal(assignees)
	if err != nil {
		return "", fmt.Errorf("marshal assignees: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteStore) CreateReschedule(ctx context.Context, r *models.RescheduleRequest) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	assignees, err := marshalAssignees(r.NewAssignees)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reschedule_requests (id, project_id, issue_number, requester_id, reason, new_iteration, new_assignees, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.IssueNumber, r.RequesterID, r.Reason, r.NewIteration, assignees, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperr.RescheduleExists(r.ProjectID, r.IssueNumber)
		}
		return fmt.Errorf("create reschedule request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanReschedule(row *sql.Row) (*models.RescheduleRequest, error) {
	r := &models.RescheduleRequest{}
	var assignees string
	err := row.Scan(&r.ID, &r.ProjectID, &r.IssueNumber, &r.RequesterID, &r.Reason, &r.NewIteration, &assignees, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assignees), &r.NewAssignees); err != nil {
		return nil, fmt.Errorf("unmarshal assignees: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetReschedule(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+rescheduleColumns+" FROM reschedule_requests WHERE id = ?", id)
	r, err := s.scanReschedule(row)
	if err == sql.ErrNoRows {
		return nil, apperr.RescheduleNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reschedule request: %w", err)
	}
	return r, nil
}

// GetRescheduleByIssue looks up the pending request for one issue of one
// project. Both conditions are ANDed; a nil result with a nil error means
// no request is pending.
func (s *SQLiteStore) GetRescheduleByIssue(ctx context.Context, projectID string, issueNumber int) (*models.RescheduleRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+rescheduleColumns+" FROM reschedule_requests WHERE project_id = ? AND issue_number = ?",
		projectID, issueNumber)
	r, err := s.scanReschedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reschedule request by issue: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReschedules(ctx context.Context, projectID string) ([]*models.RescheduleRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rescheduleColumns+" FROM reschedule_requests WHERE project_id = ? ORDER BY issue_number",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list reschedule requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reqs []*models.RescheduleRequest
	for rows.Next() {
		r := &models.RescheduleRequest{}
		var assignees string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.IssueNumber, &r.RequesterID, &r.Reason, &r.NewIteration, &assignees, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reschedule request: %w", err)
		}
		if err := json.Unmarshal([]byte(assignees), &r.NewAssignees); err != nil {
			return nil, fmt.Errorf("unmarshal assignees: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *SQLiteStore) UpdateReschedule(ctx context.Context, r *models.RescheduleRequest) error {
	r.UpdatedAt = time.Now().UTC()
	assignees, err := marshalAssignees(r.NewAssignees)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE reschedule_requests SET reason=?, new_iteration=?, new_assignees=?, updated_at=? WHERE id=?`,
		r.Reason, r.NewIteration, assignees, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reschedule request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.RescheduleNotFound(r.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteReschedule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reschedule_requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete reschedule request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.RescheduleNotFound(id)
	}
	return nil
}
