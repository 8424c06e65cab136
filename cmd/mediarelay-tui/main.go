package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/client"
	"github.com/media-relay/mediarelay/internal/config"
	"github.com/media-relay/mediarelay/internal/logging"
	"github.com/media-relay/mediarelay/internal/tui/app"
)

var rootCmd = &cobra.Command{
	Use:           "mediarelay-tui",
	Short:         "Now-playing view of a media relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Resolve(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if v, _ := cmd.Flags().GetString("url"); v != "" {
			cfg.Relay.URL = v
		}
		if v, _ := cmd.Flags().GetString("socket"); v != "" {
			cfg.Server.Socket = v
		}
		if v, _ := cmd.Flags().GetString("token"); v != "" {
			cfg.Server.AuthToken = v
		}

		logger := zap.NewNop()
		if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
			logger, err = logging.NewFile(cfg.Logging.Level, logFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
		}

		ep := client.FromConfig(cfg)
		m := app.New(client.NewWSClient(ep, logger), client.NewHTTPClient(ep), ep.String())
		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringP("config", "c", "", "Config file path (default: user config dir)")
	rootCmd.Flags().String("url", "", "Relay base URL (default: local socket)")
	rootCmd.Flags().String("socket", "", "Local socket path")
	rootCmd.Flags().String("token", "", "Relay auth token")
	rootCmd.Flags().String("log-file", "", "Write JSON logs to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
