package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/media-relay/mediarelay/internal/client"
	"github.com/media-relay/mediarelay/internal/logging"
	"github.com/media-relay/mediarelay/internal/session"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream relayed events to stdout",
	Long: `Open the relay's event stream and print every event. On a terminal the
events are printed as readable lines, otherwise as JSON lines. Only one
listener is served at a time: starting this command takes the stream from
any other listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, cfg, err := endpoint(cmd)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer logger.Sync()

		asJSON, _ := cmd.Flags().GetBool("json")
		pretty := !asJSON && term.IsTerminal(int(os.Stdout.Fd()))
		out := cmd.OutOrStdout()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = client.NewWSClient(ep, logger).Stream(ctx, func(ev session.Event) {
			if err := printEvent(out, ev, pretty); err != nil {
				logger.Sugar().Warnw("print event", "error", err)
			}
		})
		if errors.Is(err, client.ErrReplaced) {
			return errors.New("another listener took over the relay stream")
		}
		return err
	},
}

func init() {
	listenCmd.Flags().Bool("json", false, "Print JSON lines even on a terminal")
}

func printEvent(w io.Writer, ev session.Event, pretty bool) error {
	if !pretty {
		data, err := session.MarshalEvent(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var err error
	switch ev := ev.(type) {
	case session.Metadata:
		art := "no artwork"
		if ev.HasArtwork() {
			art = fmt.Sprintf("artwork %d bytes", len(ev.Artwork))
		}
		_, err = fmt.Fprintf(w, "[%s] ♪ %s - %s (%s, %s)\n",
			ev.SessionID, ev.Title, ev.Artist, clock(ev.DurationMs), art)
	case session.State:
		status := "paused"
		if ev.IsPlaying {
			status = "playing"
		}
		_, err = fmt.Fprintf(w, "[%s] %s at %s x%g\n", ev.SessionID, status, clock(ev.PositionMs), ev.Speed)
	}
	return err
}

func clock(ms int64) string {
	s := ms / 1000
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
