package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/media-relay/mediarelay/internal/client"
	"github.com/media-relay/mediarelay/internal/control"
)

const requestTimeout = 10 * time.Second

func commandNames() []string {
	names := make([]string, len(control.Commands))
	for i, c := range control.Commands {
		names[i] = string(c)
	}
	return names
}

var controlCmd = &cobra.Command{
	Use:       "control <" + strings.Join(commandNames(), "|") + ">",
	Short:     "Send a transport command to the focused player",
	Long:      `Send a transport command through the relay. Unknown commands exit with status 2.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: commandNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, _, err := endpoint(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		err = client.NewHTTPClient(ep).Control(ctx, args[0])
		if errors.Is(err, control.ErrNotImplemented) {
			return &exitError{code: 2, err: fmt.Errorf("%s: not implemented", args[0])}
		}
		return err
	},
}
