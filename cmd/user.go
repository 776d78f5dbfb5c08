package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/output"
)

var (
	userToken      string
	userField      string
	userExperience string
	assessRepos    []string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage registered users",
}

var userAddCmd = &cobra.Command{
	Use:   "add NAME GITHUB_NAME",
	Short: "Register a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		user := &models.User{
			Name:              args[0],
			GitHubName:        args[1],
			GitHubAccessToken: userToken,
			Field:             userField,
			Experience:        userExperience,
		}

		if dryRun {
			ui.DryRunMsg("Would register user %s (@%s)", user.Name, user.GitHubName)
			return nil
		}

		if err := s.CreateUser(cmd.Context(), user); err != nil {
			return err
		}
		ui.Success("Registered %s (@%s)", user.Name, user.GitHubName)
		return nil
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show GITHUB_NAME",
	Short: "Show a user and their competency profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		user, err := s.GetUserByGitHubName(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(ui.Out, "%s (@%s)\n", output.Cyan(user.Name), user.GitHubName)
		if user.Field != "" {
			fmt.Fprintf(ui.Out, "  Field:      %s\n", user.Field)
		}
		if user.Experience != "" {
			fmt.Fprintf(ui.Out, "  Experience: %s\n", user.Experience)
		}

		if user.Profile == nil {
			ui.Info("No competency profile yet (run 'devpilot user assess')")
			return nil
		}

		p := user.Profile
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Project contribution: %s  %s\n",
			output.ScoreColor(p.ProjectContribution.Score), p.ProjectContribution.Justification)
		fmt.Fprintf(ui.Out, "  Troubleshooting:      %s  %s\n",
			output.ScoreColor(p.Troubleshooting.Score), p.Troubleshooting.Justification)
		if len(p.ImplementedFeatures) > 0 {
			fmt.Fprintf(ui.Out, "  Features: %s\n", strings.Join(p.ImplementedFeatures, ", "))
		}
		return nil
	},
}

var userAssessCmd = &cobra.Command{
	Use:   "assess GITHUB_NAME",
	Short: "Assess a user's competency from their repository activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(assessRepos) == 0 {
			return fmt.Errorf("at least one --repo is required")
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		user, err := s.GetUserByGitHubName(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would assess @%s over %s", user.GitHubName, strings.Join(assessRepos, ", "))
			return nil
		}

		pipeline, err := newPipeline()
		if err != nil {
			return err
		}

		ui.Info("Assessing @%s over %d repositories...", user.GitHubName, len(assessRepos))
		profile, err := pipeline.AssessCompetency(cmd.Context(), user, assessRepos)
		if err != nil {
			return err
		}

		user.Profile = profile
		if profile.Field != "" {
			user.Field = profile.Field
		}
		if profile.Experience != "" {
			user.Experience = profile.Experience
		}
		if err := s.UpdateUser(cmd.Context(), user); err != nil {
			return err
		}

		ui.Success("Profile updated: contribution %s, troubleshooting %s",
			output.ScoreColor(profile.ProjectContribution.Score),
			output.ScoreColor(profile.Troubleshooting.Score))
		return nil
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove GITHUB_NAME",
	Short: "Remove a registered user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		user, err := s.GetUserByGitHubName(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if dryRun {
			ui.DryRunMsg("Would remove @%s", user.GitHubName)
			return nil
		}

		if err := s.DeleteUser(cmd.Context(), user.ID); err != nil {
			return err
		}
		ui.Success("Removed @%s", user.GitHubName)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userToken, "token", "", "GitHub access token for this user")
	userAddCmd.Flags().StringVar(&userField, "field", "", "Development field (e.g. backend)")
	userAddCmd.Flags().StringVar(&userExperience, "experience", "", "Experience level (e.g. junior)")
	userAssessCmd.Flags().StringSliceVar(&assessRepos, "repo", nil, "Repository to analyze (repeatable, owner/repo)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userAssessCmd)
	userCmd.AddCommand(userRemoveCmd)
	rootCmd.AddCommand(userCmd)
}
