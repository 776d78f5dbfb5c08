package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/output"
	"github.com/devpilot-kr/devpilot/internal/reschedule"
)

var (
	reschedReason    string
	reschedIteration int
	reschedAssignees []string
)

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule",
	Short: "Request and resolve issue reschedules",
}

var rescheduleRequestCmd = &cobra.Command{
	Use:   "request PROJECT NUMBER",
	Short: "Propose a new iteration or assignees for an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid issue number: %s", args[1])
		}

		if dryRun {
			ui.DryRunMsg("Would request reschedule of #%d to iteration %d", number, reschedIteration)
			return nil
		}

		svc, err := newRescheduleService()
		if err != nil {
			return err
		}
		view, err := svc.Create(ctx, user.ID, project.ID, reschedule.Request{
			IssueNumber:  number,
			Reason:       reschedReason,
			NewIteration: reschedIteration,
			NewAssignees: reschedAssignees,
		})
		if err != nil {
			return err
		}

		ui.Success("Reschedule requested for #%d: iteration %d -> %d",
			view.IssueNumber, view.OldIteration, view.NewIteration)
		return nil
	},
}

var rescheduleListCmd = &cobra.Command{
	Use:   "list PROJECT",
	Short: "List pending reschedule requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}

		svc, err := newRescheduleService()
		if err != nil {
			return err
		}
		views, err := svc.List(ctx, user.ID, project.ID)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			ui.Info("No pending reschedule requests")
			return nil
		}

		table := ui.Table([]string{"#", "TITLE", "REQUESTER", "ITER", "ASSIGNEES", "REASON"})
		for _, v := range views {
			_ = table.Append([]string{
				strconv.Itoa(v.IssueNumber),
				v.IssueTitle,
				v.RequesterName,
				fmt.Sprintf("%d -> %d", v.OldIteration, v.NewIteration),
				strings.Join(v.NewAssignees, ", "),
				v.Reason,
			})
		}
		return table.Render()
	},
}

var rescheduleApproveCmd = &cobra.Command{
	Use:   "approve PROJECT NUMBER",
	Short: "Approve a pending reschedule and apply it to GitHub",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveRun(cmd.Context(), args[0], args[1], models.DecisionApproved)
	},
}

var rescheduleRejectCmd = &cobra.Command{
	Use:   "reject PROJECT NUMBER",
	Short: "Reject a pending reschedule without touching GitHub",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveRun(cmd.Context(), args[0], args[1], models.DecisionRejected)
	},
}

func resolveRun(ctx context.Context, projectName, issueArg string, decision models.Decision) error {
	user, project, err := actingUserAndProject(ctx, projectName)
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(issueArg)
	if err != nil {
		return fmt.Errorf("invalid issue number: %s", issueArg)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	record, err := s.GetRescheduleByIssue(ctx, project.ID, number)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no pending reschedule request for issue #%d", number)
	}

	if dryRun {
		ui.DryRunMsg("Would resolve reschedule for #%d as %s", number, decision)
		return nil
	}

	svc, err := newRescheduleService()
	if err != nil {
		return err
	}
	if err := svc.Resolve(ctx, user.ID, record.ID, decision); err != nil {
		return err
	}
	ui.Success("Reschedule for #%d: %s", number, output.DecisionColor(string(decision)))
	return nil
}

func init() {
	rescheduleRequestCmd.Flags().StringVar(&reschedReason, "reason", "", "Why the issue should move")
	rescheduleRequestCmd.Flags().IntVar(&reschedIteration, "iteration", 0, "Proposed new iteration")
	rescheduleRequestCmd.Flags().StringSliceVar(&reschedAssignees, "assignee", nil, "Proposed assignee login (repeatable)")

	rescheduleCmd.AddCommand(rescheduleRequestCmd)
	rescheduleCmd.AddCommand(rescheduleListCmd)
	rescheduleCmd.AddCommand(rescheduleApproveCmd)
	rescheduleCmd.AddCommand(rescheduleRejectCmd)
	rootCmd.AddCommand(rescheduleCmd)
}
