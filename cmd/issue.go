package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/output"
)

var (
	issueState     string
	issueBody      string
	issuePriority  string
	issueIteration int
	issueAssignees []string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage a project's GitHub issues",
}

var issueListCmd = &cobra.Command{
	Use:   "list PROJECT",
	Short: "List issues with priority and iteration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		gh, err := newGitHubClient()
		if err != nil {
			return err
		}

		issues, err := gh.ListIssues(ctx, project.RepoFullname)
		if err != nil {
			return err
		}

		table := ui.Table([]string{"#", "TITLE", "PRI", "ITER", "STATE", "ASSIGNEES"})
		for _, issue := range issues {
			switch issueState {
			case "open":
				if issue.Closed {
					continue
				}
			case "closed":
				if !issue.Closed {
					continue
				}
			}
			iter := strconv.Itoa(issue.Iteration)
			if issue.Iteration < 0 {
				iter = "-"
			}
			_ = table.Append([]string{
				strconv.Itoa(issue.Number),
				issue.Title,
				output.PriorityColor(issue.Priority),
				iter,
				output.StateColor(issue.Closed),
				strings.Join(issue.Assignees, ", "),
			})
		}
		return table.Render()
	},
}

var issueCreateCmd = &cobra.Command{
	Use:   "create PROJECT TITLE",
	Short: "Create an issue with priority/iteration metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}

		req := github.IssueRequest{
			Title:     args[1],
			Body:      issueBody,
			Assignees: issueAssignees,
			Priority:  issuePriority,
			Iteration: issueIteration,
		}

		if dryRun {
			ui.DryRunMsg("Would create issue %q on %s (priority %s, iteration %d)",
				req.Title, project.RepoFullname, req.Priority, req.Iteration)
			return nil
		}

		gh, err := newGitHubClient()
		if err != nil {
			return err
		}
		issue, err := gh.CreateIssue(ctx, project.RepoFullname, req)
		if err != nil {
			return err
		}
		ui.Success("Created issue #%d: %s", issue.Number, issue.Title)
		return nil
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show PROJECT NUMBER",
	Short: "Show one issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid issue number: %s", args[1])
		}

		gh, err := newGitHubClient()
		if err != nil {
			return err
		}
		issue, err := gh.GetIssue(ctx, project.RepoFullname, number)
		if err != nil {
			return err
		}

		fmt.Fprintf(ui.Out, "#%d %s  [%s]\n", issue.Number, output.Cyan(issue.Title), output.StateColor(issue.Closed))
		fmt.Fprintf(ui.Out, "  Priority:  %s\n", output.PriorityColor(issue.Priority))
		fmt.Fprintf(ui.Out, "  Iteration: %d\n", issue.Iteration)
		if len(issue.Assignees) > 0 {
			fmt.Fprintf(ui.Out, "  Assignees: %s\n", strings.Join(issue.Assignees, ", "))
		}
		if len(issue.Labels) > 0 {
			fmt.Fprintf(ui.Out, "  Labels:    %s\n", strings.Join(issue.Labels, ", "))
		}
		if issue.Body != "" {
			fmt.Fprintf(ui.Out, "\n%s\n", issue.Body)
		}
		return nil
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close PROJECT NUMBER",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid issue number: %s", args[1])
		}

		if dryRun {
			ui.DryRunMsg("Would close issue #%d on %s", number, project.RepoFullname)
			return nil
		}

		gh, err := newGitHubClient()
		if err != nil {
			return err
		}
		if err := gh.CloseIssue(ctx, project.RepoFullname, number); err != nil {
			return err
		}
		ui.Success("Closed issue #%d", number)
		return nil
	},
}

var issueSummaryCmd = &cobra.Command{
	Use:   "summary PROJECT",
	Short: "Show open/closed issue counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		gh, err := newGitHubClient()
		if err != nil {
			return err
		}

		issues, err := gh.ListIssues(ctx, project.RepoFullname)
		if err != nil {
			return err
		}

		var closed int
		for _, issue := range issues {
			if issue.Closed {
				closed++
			}
		}
		fmt.Fprintf(ui.Out, "%s: %s open, %s closed, %d total\n",
			output.Cyan(project.Name),
			output.Green(strconv.Itoa(len(issues)-closed)),
			output.Red(strconv.Itoa(closed)),
			len(issues))
		return nil
	},
}

func init() {
	issueListCmd.Flags().StringVar(&issueState, "state", "all", "Filter by state (open, closed, all)")
	issueCreateCmd.Flags().StringVar(&issueBody, "body", "", "Issue body")
	issueCreateCmd.Flags().StringVar(&issuePriority, "priority", "M", "MoSCoW priority (M, S, C, W)")
	issueCreateCmd.Flags().IntVar(&issueIteration, "iteration", 1, "Sprint iteration")
	issueCreateCmd.Flags().StringSliceVar(&issueAssignees, "assignee", nil, "Assignee login (repeatable)")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueSummaryCmd)
	rootCmd.AddCommand(issueCmd)
}
