package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"board-sync/internal/tui"
)

func boardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "board [project-id]",
		Short: "Open the live kanban board of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The board owns the terminal, so logs go to a file next to the session.
			f, err := os.OpenFile(filepath.Join(c.clients.Config.Session.Dir, "board.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			c.clients.Logger.SetOutput(f)

			b, closeBoard := c.clients.OpenBoard(cmd.Context(), args[0])
			defer closeBoard()
			return tui.Run(b)
		},
	}
}
