package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"board-sync/internal/domain"
	"board-sync/internal/session"
)

func passwordFlag(cmd *cobra.Command) (string, error) {
	pw, _ := cmd.Flags().GetString("password")
	if pw == "" {
		pw = os.Getenv("BOARD_PASSWORD")
	}
	if pw == "" {
		return "", errors.New("password is required (--password or BOARD_PASSWORD)")
	}
	return pw, nil
}

func loginCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			res, err := c.clients.Gateway.Login(cmd.Context(), domain.Credentials{Email: args[0], Password: pw})
			if err != nil {
				return err
			}
			if err := c.clients.Session.Save(res.Token); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", res.User.Email)
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Account password")
	return cmd
}

func registerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register [name] [email]",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFlag(cmd)
			if err != nil {
				return err
			}
			res, err := c.clients.Gateway.Register(cmd.Context(), domain.Registration{Name: args[0], Email: args[1], Password: pw})
			if err != nil {
				return err
			}
			if err := c.clients.Session.Save(res.Token); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\n", res.User.Name)
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Account password")
	return cmd
}

func logoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.clients.Session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.clients.Session.Valid() {
				return errors.New("not signed in")
			}
			user, err := c.clients.Gateway.Profile(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", user.Name, user.Email)
			if claims, err := session.ParseClaims(c.clients.Session.Token()); err == nil && !claims.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Session expires %s\n", claims.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
