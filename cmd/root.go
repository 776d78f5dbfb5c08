package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devpilot-kr/devpilot/internal/agent"
	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/llm"
	"github.com/devpilot-kr/devpilot/internal/models"
	"github.com/devpilot-kr/devpilot/internal/output"
	"github.com/devpilot-kr/devpilot/internal/reschedule"
	"github.com/devpilot-kr/devpilot/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
	asUser  string

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "devpilot",
	Short: "DevPilot - AI-assisted project planning on top of GitHub issues",
	Long: `devpilot manages team projects backed by GitHub repositories.
It drafts issues from planning documents with an LLM, recommends
assignees from assessed competency profiles, and runs an
approval-based workflow for rescheduling issues.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().StringVar(&asUser, "user", "", "Act as this GitHub login (default: user from config)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/devpilot/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "devpilot")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DEVPILOT")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "devpilot")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "devpilot.db"))
	viper.SetDefault("user", "")
	viper.SetDefault("github.token", "")
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "")
	viper.SetDefault("report.webhook_url", "")
	viper.SetDefault("server.port", 8080)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newGitHubClient builds the GitHub adapter from the configured token.
func newGitHubClient() (*github.Client, error) {
	token := viper.GetString("github.token")
	if token == "" {
		return nil, fmt.Errorf("github.token is not configured (set DEVPILOT_GITHUB_TOKEN or run 'devpilot config init')")
	}
	return github.New(token, nil), nil
}

// newCompleter builds the configured LLM provider.
func newCompleter() (llm.Completer, error) {
	provider := viper.GetString("llm.provider")
	cfg := llm.Config{Provider: provider, MaxTokens: viper.GetInt("llm.max_tokens")}
	switch provider {
	case "openai":
		cfg.APIKey = viper.GetString("openai.api_key")
		cfg.Model = viper.GetString("openai.model")
	default:
		cfg.APIKey = viper.GetString("anthropic.api_key")
		cfg.Model = viper.GetString("anthropic.model")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for llm provider %q", provider)
	}
	return llm.New(cfg), nil
}

func newPipeline() (*agent.Pipeline, error) {
	completer, err := newCompleter()
	if err != nil {
		return nil, err
	}
	gh, err := newGitHubClient()
	if err != nil {
		return nil, err
	}
	return agent.NewPipeline(completer, gh, nil), nil
}

func newRescheduleService() (*reschedule.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	gh, err := newGitHubClient()
	if err != nil {
		return nil, err
	}
	return reschedule.NewService(s, gh, nil), nil
}

// actingUser resolves the --user flag (or the configured login) to a
// registered user.
func actingUser(ctx context.Context) (*models.User, error) {
	login := asUser
	if login == "" {
		login = viper.GetString("user")
	}
	if login == "" {
		return nil, fmt.Errorf("no acting user: pass --user or set 'user' in the config")
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return s.GetUserByGitHubName(ctx, login)
}

// resolveProject matches a project by exact name among the acting
// user's projects.
func resolveProject(ctx context.Context, user *models.User, name string) (*models.Project, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	projects, err := s.ListProjectsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("project not found: %s", name)
}
