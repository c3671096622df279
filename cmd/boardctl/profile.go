package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"board-sync/internal/domain"
)

func profileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			in := domain.ProfileInput{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}

			var (
				user domain.User
				err  error
			)
			if in == (domain.ProfileInput{}) {
				user, err = c.clients.Gateway.Profile(cmd.Context())
			} else {
				user, err = c.clients.Gateway.UpdateProfile(cmd.Context(), in)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
	cmd.Flags().String("name", "", "New display name")
	cmd.Flags().String("email", "", "New email address")
	return cmd
}

func taskCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "task [project-id] [task-id]",
		Short: "Show one task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.clients.Gateway.GetTask(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  [%s]\n", t.Title, t.Status.Label())
			if t.Description != "" {
				fmt.Fprintln(out, t.Description)
			}
			return nil
		},
	}
}
