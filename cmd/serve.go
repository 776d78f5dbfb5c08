package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devpilot-kr/devpilot/internal/api"
	"github.com/devpilot-kr/devpilot/internal/report"
	"github.com/devpilot-kr/devpilot/internal/reschedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the devpilot HTTP API server",
	Long:  "Start the HTTP API server backing the devpilot web clients.\nBy default it listens on port 8080. Use --port to change it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := viper.GetInt("server.port")

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		s, err := getStore()
		if err != nil {
			return err
		}
		gh, err := newGitHubClient()
		if err != nil {
			return err
		}
		pipeline, err := newPipeline()
		if err != nil {
			return err
		}
		reporter := report.New(viper.GetString("report.webhook_url"), logger)

		srv := api.NewServer(s, gh, pipeline, reschedule.NewService(s, gh, logger), reporter, logger)

		addr := fmt.Sprintf(":%d", port)
		logger.Info("serving API", "addr", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
