package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/media-relay/mediarelay/internal/client"
	"github.com/media-relay/mediarelay/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// exitError carries a process exit status other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "mediarelay",
	Short: "Relay host media sessions to a websocket listener",
	Long: `mediarelay watches the media players of this desktop session, relays
their track and playback changes to one websocket listener, and applies
play-pause, next and previous commands to the player holding media focus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mediarelay %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(controlCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (default: user config dir)")
	rootCmd.PersistentFlags().String("url", "", "Relay base URL, e.g. http://127.0.0.1:8765 (default: local socket)")
	rootCmd.PersistentFlags().String("socket", "", "Local socket path")
	rootCmd.PersistentFlags().String("token", "", "Relay auth token")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// loadConfig resolves the config file and applies the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
	return cfg, nil
}

func endpoint(cmd *cobra.Command) (client.Endpoint, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return client.Endpoint{}, nil, err
	}
	return client.FromConfig(cfg), cfg, nil
}
