package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"board-sync/internal/app"
	"board-sync/internal/config"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries what every subcommand needs. clients is filled in by the root
// command before any subcommand runs.
type cli struct {
	configPath string
	clients    *app.Clients
}

func rootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Work with project task boards from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to the yaml config (default $BOARD_CONFIG)")

	cmd.AddCommand(loginCmd(c))
	cmd.AddCommand(registerCmd(c))
	cmd.AddCommand(logoutCmd(c))
	cmd.AddCommand(whoamiCmd(c))
	cmd.AddCommand(projectsCmd(c))
	cmd.AddCommand(membersCmd(c))
	cmd.AddCommand(profileCmd(c))
	cmd.AddCommand(taskCmd(c))
	cmd.AddCommand(statsCmd(c))
	cmd.AddCommand(exportCmd(c))
	cmd.AddCommand(boardCmd(c))
	return cmd
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	clients, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	c.clients = clients
	return nil
}
