package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/output"
)

var (
	agentDocFiles    []string
	agentDraftsFile  string
	agentAssignOut   string
	agentAssignments string
	agentOutFile     string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "LLM-assisted issue generation and assignment",
}

// draftBundle is the on-disk handoff between generate, assign, and
// confirm, so each stage can be reviewed and edited before the next.
type draftBundle struct {
	Features []string            `json:"features"`
	Drafts   []models.IssueDraft `json:"drafts"`
}

var agentGenerateCmd = &cobra.Command{
	Use:   "generate PROJECT",
	Short: "Draft issues from planning documents",
	Long: `Read planning documents, extract a feature list, and draft one
issue per feature. Drafts are written to a JSON file for review;
nothing is created on GitHub until 'devpilot agent confirm'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}
		if len(agentDocFiles) == 0 {
			return fmt.Errorf("at least one --doc is required")
		}

		var docs strings.Builder
		for _, path := range agentDocFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			docs.Write(data)
			docs.WriteString("\n\n")
		}

		pipeline, err := newPipeline()
		if err != nil {
			return err
		}

		ui.Info("Extracting features from %d document(s)...", len(agentDocFiles))
		features, err := pipeline.DefineFeatures(ctx, project, docs.String())
		if err != nil {
			return err
		}
		for _, f := range features {
			ui.VerboseLog("feature: %s", f)
		}

		ui.Info("Drafting %d issue(s)...", len(features))
		drafts, err := pipeline.DraftIssues(ctx, project, docs.String(), features)
		if err != nil {
			return err
		}

		table := ui.Table([]string{"TITLE", "PRI", "SPRINT", "LABELS"})
		for _, d := range drafts {
			_ = table.Append([]string{
				d.Title,
				output.PriorityColor(d.Priority),
				strconv.Itoa(d.Sprint),
				strings.Join(d.Labels, ", "),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}

		bundle := draftBundle{Features: features, Drafts: drafts}
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(agentOutFile, data, 0644); err != nil {
			return fmt.Errorf("write drafts file: %w", err)
		}
		ui.Success("Wrote %d draft(s) to %s", len(drafts), agentOutFile)
		return nil
	},
}

var agentAssignCmd = &cobra.Command{
	Use:   "assign PROJECT",
	Short: "Recommend assignees for drafted issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}

		bundle, err := readDraftBundle(agentDraftsFile)
		if err != nil {
			return err
		}
		roster, err := projectRoster(ctx, project)
		if err != nil {
			return err
		}

		pipeline, err := newPipeline()
		if err != nil {
			return err
		}
		assignments, err := pipeline.RecommendAssignees(ctx, project, bundle.Drafts, roster)
		if err != nil {
			return err
		}

		table := ui.Table([]string{"ISSUE", "ASSIGNEE", "WHY"})
		for _, a := range assignments {
			_ = table.Append([]string{a.Issue, "@" + a.Assignee, strings.Join(a.Description, "; ")})
		}
		if err := table.Render(); err != nil {
			return err
		}

		data, err := json.MarshalIndent(assignments, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(agentAssignOut, data, 0644); err != nil {
			return fmt.Errorf("write assignments file: %w", err)
		}
		ui.Success("Wrote %d assignment(s) to %s", len(assignments), agentAssignOut)
		return nil
	},
}

var agentConfirmCmd = &cobra.Command{
	Use:   "confirm PROJECT",
	Short: "Create GitHub issues from reviewed drafts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, project, err := actingUserAndProject(ctx, args[0])
		if err != nil {
			return err
		}

		bundle, err := readDraftBundle(agentDraftsFile)
		if err != nil {
			return err
		}

		assignees := map[string][]string{}
		if agentAssignments != "" {
			data, err := os.ReadFile(agentAssignments)
			if err != nil {
				return fmt.Errorf("read assignments file: %w", err)
			}
			var assignments []models.Assignment
			if err := json.Unmarshal(data, &assignments); err != nil {
				return fmt.Errorf("parse assignments file: %w", err)
			}
			for _, a := range assignments {
				assignees[a.Issue] = append(assignees[a.Issue], a.Assignee)
			}
		}

		if dryRun {
			ui.DryRunMsg("Would create %d issue(s) on %s", len(bundle.Drafts), project.RepoFullname)
			return nil
		}

		pipeline, err := newPipeline()
		if err != nil {
			return err
		}
		issues, err := pipeline.ConfirmDrafts(ctx, project, bundle.Drafts, assignees)
		if err != nil {
			return err
		}

		for _, issue := range issues {
			ui.Success("Created #%d: %s", issue.Number, issue.Title)
		}
		return nil
	},
}

var agentFeedbackCmd = &cobra.Command{
	Use:   "feedback PROJECT NUMBER",
	Short: "Get reschedule advice for an issue",
	Long: `Ask the model for reschedule options for one issue: either a
better-suited assignee or a more realistic sprint, each with a reason.`,
	Args: cobra.ExactArgs(2),
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
		roster, err := projectRoster(ctx, project)
		if err != nil {
			return err
		}

		pipeline, err := newPipeline()
		if err != nil {
			return err
		}
		fb, err := pipeline.Feedback(ctx, project, issue, reschedReason, roster)
		if err != nil {
			return err
		}

		fmt.Fprintf(ui.Out, "#%d %s\n", issue.Number, output.Cyan(issue.Title))
		if fb.ModificationReason != "" {
			fmt.Fprintf(ui.Out, "  %s\n", fb.ModificationReason)
		}
		if fb.NewAssignee.Name != "" {
			fmt.Fprintf(ui.Out, "  Reassign to @%s: %s\n", fb.NewAssignee.Name, fb.NewAssignee.Reason)
		}
		if fb.NewSprint.Sprint > 0 {
			fmt.Fprintf(ui.Out, "  Move to sprint %d: %s\n", fb.NewSprint.Sprint, fb.NewSprint.Reason)
		}
		return nil
	},
}

func readDraftBundle(path string) (*draftBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read drafts file: %w", err)
	}
	var bundle draftBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse drafts file: %w", err)
	}
	if len(bundle.Drafts) == 0 {
		return nil, fmt.Errorf("no drafts in %s", path)
	}
	return &bundle, nil
}

func init() {
	agentGenerateCmd.Flags().StringSliceVar(&agentDocFiles, "doc", nil, "Planning document to read (repeatable)")
	agentGenerateCmd.Flags().StringVar(&agentOutFile, "out", "drafts.json", "Where to write the draft bundle")
	agentAssignCmd.Flags().StringVar(&agentDraftsFile, "drafts", "drafts.json", "Draft bundle from 'agent generate'")
	agentAssignCmd.Flags().StringVar(&agentAssignOut, "out", "assignments.json", "Where to write assignments")
	agentConfirmCmd.Flags().StringVar(&agentDraftsFile, "drafts", "drafts.json", "Draft bundle from 'agent generate'")
	agentConfirmCmd.Flags().StringVar(&agentAssignments, "assignments", "", "Assignments from 'agent assign' (optional)")
	agentFeedbackCmd.Flags().StringVar(&reschedReason, "reason", "", "Why the issue is slipping")

	agentCmd.AddCommand(agentGenerateCmd)
	agentCmd.AddCommand(agentAssignCmd)
	agentCmd.AddCommand(agentConfirmCmd)
	agentCmd.AddCommand(agentFeedbackCmd)
	rootCmd.AddCommand(agentCmd)
}
