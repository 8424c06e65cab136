package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/media-relay/mediarelay/internal/client"
	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/ws"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the media sessions the relay is attached to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, _, err := endpoint(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		sessions, err := client.NewHTTPClient(ep).Sessions(ctx)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), sessions)
		}
		return printSessions(cmd.OutOrStdout(), sessions)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay health: listener state, source state and absorbed errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, _, err := endpoint(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		h, err := client.NewHTTPClient(ep).Health(ctx)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), h)
		}
		return printHealth(cmd.OutOrStdout(), h)
	},
}

func init() {
	sessionsCmd.Flags().Bool("json", false, "Print JSON")
	statusCmd.Flags().Bool("json", false, "Print JSON")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSessions(w io.Writer, sessions []session.Snapshot) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "no media sessions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FOCUS\tPLAYER\tPROCESS\tSTATE\tID")
	for _, s := range sessions {
		focus := ""
		if s.Focused {
			focus = "*"
		}
		state := "paused"
		if s.Playing {
			state = "playing"
		}
		process := s.Process
		if process == "" {
			process = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", focus, s.DisplayName(), process, state, s.ID)
	}
	return tw.Flush()
}

func printHealth(w io.Writer, h *ws.HealthResponse) error {
	fmt.Fprintf(w, "listener: %s\n", h.Transport)
	fmt.Fprintf(w, "source:   %s (%s, %d sessions)\n", h.Source.Source, h.Source.State, h.Source.Sessions)
	if h.Source.LastError != "" {
		fmt.Fprintf(w, "          last error: %s\n", h.Source.LastError)
	}
	if len(h.Errors) == 0 {
		_, err := fmt.Fprintln(w, "errors:   none")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCOUNT\tLAST")
	for _, c := range h.Errors {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Kind, c.Count, c.LastError)
	}
	return tw.Flush()
}
