package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"board-sync/internal/domain"
)

func membersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage who can work on a project",
	}
	cmd.AddCommand(membersListCmd(c))
	cmd.AddCommand(membersAddCmd(c))
	cmd.AddCommand(membersRemoveCmd(c))
	return cmd
}

func membersListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list [project-id]",
		Short: "List project members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd, c, args[0], true)
			if err != nil {
				return err
			}
			members := p.Members
			if len(members) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No members yet")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MEMBERSHIP\tEMAIL\tROLE")
			for _, m := range members {
				email := "Unknown member"
				if m.User != nil && m.User.Email != "" {
					email = m.User.Email
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, email, m.Role)
			}
			return w.Flush()
		},
	}
}

// findUser resolves an email to exactly one user through the search endpoint.
func findUser(cmd *cobra.Command, c *cli, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, &domain.ValidationError{Field: "email", Message: "Email is required"}
	}
	users, err := c.clients.Gateway.SearchUsers(cmd.Context(), email)
	if err != nil {
		return domain.User{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("no user with email %s", email)
}

func membersAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add [project-id] [email]",
		Short: "Invite a user to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd, c, args[0], true)
			if err != nil {
				return err
			}
			u, err := findUser(cmd, c, args[1])
			if err != nil {
				return err
			}
			if _, ok := p.MemberByUser(u.ID); ok {
				return fmt.Errorf("%s is already a member", u.Email)
			}
			m, err := c.clients.Gateway.InviteMember(cmd.Context(), args[0], u.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s as %s\n", u.Email, m.Role)
			return nil
		},
	}
}

func membersRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [project-id] [email]",
		Short: "Remove a user from a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd, c, args[0], true)
			if err != nil {
				return err
			}
			u, err := findUser(cmd, c, args[1])
			if err != nil {
				return err
			}
			if u.ID == p.OwnerID {
				return errors.New("the project owner cannot be removed")
			}
			m, ok := p.MemberByUser(u.ID)
			if !ok {
				return fmt.Errorf("%s is not a member", u.Email)
			}
			if err := c.clients.Gateway.RemoveMember(cmd.Context(), args[0], m.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", u.Email)
			return nil
		},
	}
}
