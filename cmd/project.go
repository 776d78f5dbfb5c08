package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/output"
)

var (
	projectSprintUnit int
	projectStartDate  string
	memberRole        string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME REPO",
	Short: "Create a project backed by a GitHub repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, err := actingUser(ctx)
		if err != nil {
			return err
		}

		start := time.Now()
		if projectStartDate != "" {
			start, err = time.Parse("2006-01-02", projectStartDate)
			if err != nil {
				return fmt.Errorf("invalid --start-date (want YYYY-MM-DD): %w", err)
			}
		}

		gh, err := newGitHubClient()
		if err != nil {
			return err
		}
		exists, err := gh.RepoExists(ctx, args[1])
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("repository not found or not accessible: %s", args[1])
		}

		project := &models.Project{
			Name:         args[0],
			RepoFullname: args[1],
			OwnerID:      user.ID,
			SprintUnit:   projectSprintUnit,
			StartDate:    start,
			Active:       true,
		}

		if dryRun {
			ui.DryRunMsg("Would create project %s on %s", project.Name, project.RepoFullname)
			return nil
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		if err := s.CreateProject(ctx, project); err != nil {
			return err
		}
		ui.Success("Created project %s (%s, sprint unit %d days)",
			project.Name, project.RepoFullname, project.SprintUnit)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects you own or belong to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, err := actingUser(ctx)
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}

		projects, err := s.ListProjectsForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			ui.Info("No projects")
			return nil
		}

		table := ui.Table([]string{"NAME", "REPO", "SPRINT", "START", "ACTIVE"})
		for _, p := range projects {
			active := output.Green("yes")
			if !p.Active {
				active = output.Red("no")
			}
			table.Append([]string{
				output.Cyan(p.Name),
				p.RepoFullname,
				fmt.Sprintf("%dd", p.SprintUnit),
				p.StartDate.Format("2006-01-02"),
				active,
			})
		}
		return table.Render()
	},
}

var projectMembersCmd = &cobra.Command{
	Use:   "members PROJECT",
	Short: "List a project's members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}

		roster, err := projectRoster(ctx, project)
		if err != nil {
			return err
		}

		table := ui.Table([]string{"NAME", "GITHUB", "ROLE"})
		for _, m := range roster {
			role := "member"
			if m.ID == project.OwnerID {
				role = "owner"
			}
			table.Append([]string{m.Name, "@" + m.GitHubName, role})
		}
		return table.Render()
	},
}

var projectAddMemberCmd = &cobra.Command{
	Use:   "add-member PROJECT GITHUB_NAME",
	Short: "Add a registered user to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		if project.OwnerID != user.ID {
			return fmt.Errorf("only the project owner may add members")
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		member, err := s.GetUserByGitHubName(ctx, args[1])
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would add @%s to %s as %s", member.GitHubName, project.Name, memberRole)
			return nil
		}

		if err := s.AddMember(ctx, &models.ProjectMember{
			ProjectID: project.ID,
			UserID:    member.ID,
			Role:      models.MemberRole(memberRole),
		}); err != nil {
			return err
		}
		ui.Success("Added @%s to %s", member.GitHubName, project.Name)
		return nil
	},
}

var projectRemoveMemberCmd = &cobra.Command{
	Use:   "remove-member PROJECT GITHUB_NAME",
	Short: "Remove a member from a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		member, err := s.GetUserByGitHubName(ctx, args[1])
		if err != nil {
			return err
		}
		// Owners may remove anyone; members may only remove themselves.
		if project.OwnerID != user.ID && member.ID != user.ID {
			return fmt.Errorf("only the project owner may remove other members")
		}

		if dryRun {
			ui.DryRunMsg("Would remove @%s from %s", member.GitHubName, project.Name)
			return nil
		}

		if err := s.RemoveMember(ctx, project.ID, member.ID); err != nil {
			return err
		}
		ui.Success("Removed @%s from %s", member.GitHubName, project.Name)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().IntVar(&projectSprintUnit, "sprint-unit", 7, "Sprint length in days")
	projectCreateCmd.Flags().StringVar(&projectStartDate, "start-date", "", "Project start date (YYYY-MM-DD, default today)")
	projectAddMemberCmd.Flags().StringVar(&memberRole, "role", "member", "Member role (member or owner)")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectMembersCmd)
	projectCmd.AddCommand(projectAddMemberCmd)
	projectCmd.AddCommand(projectRemoveMemberCmd)
	rootCmd.AddCommand(projectCmd)
}

// actingUserAndProject resolves the acting user and one of their
// projects by name.
func actingUserAndProject(ctx context.Context, name string) (*models.User, *models.Project, error) {
	user, err := actingUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	project, err := resolveProject(ctx, user, name)
	if err != nil {
		return nil, nil, err
	}
	return user, project, nil
}

// projectRoster returns the project's members plus its owner, owner first.
func projectRoster(ctx context.Context, project *models.Project) ([]*models.User, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	owner, err := s.GetUser(ctx, project.OwnerID)
	if err != nil {
		return nil, err
	}
	roster := []*models.User{owner}

	members, err := s.ListMembers(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == project.OwnerID {
			continue
		}
		u, err := s.GetUser(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		roster = append(roster, u)
	}
	return roster, nil
}
