package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"board-sync/internal/board"
	"board-sync/internal/domain"
)

func projectsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List the projects you can open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := c.clients.Gateway.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects yet")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%d\n", p.ID, p.Name, len(p.Members))
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(projectCreateCmd(c))
	cmd.AddCommand(projectRenameCmd(c))
	cmd.AddCommand(projectDeleteCmd(c))
	return cmd
}

func projectCreateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project owned by you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			in := domain.ProjectInput{Name: args[0], Description: desc}.Normalize()
			if err := in.Validate(); err != nil {
				return err
			}
			p, err := c.clients.Gateway.CreateProject(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	cmd.Flags().StringP("description", "d", "", "Project description")
	return cmd
}

func projectRenameCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rename [project-id] [name]",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := loadProject(cmd, c, args[0], false)
			if err != nil {
				return err
			}
			in := domain.ProjectInput{Name: args[1], Description: current.Description}.Normalize()
			if err := in.Validate(); err != nil {
				return err
			}
			p, err := c.clients.Gateway.UpdateProject(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed project to %s\n", p.Name)
			return nil
		},
	}
}

func projectDeleteCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("deleting a project cannot be undone, pass --yes to confirm")
			}
			if err := c.clients.Gateway.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm the deletion")
	return cmd
}

// loadProject fetches a project, with its current member list when asked,
// and refuses one whose membership is inconsistent.
func loadProject(cmd *cobra.Command, c *cli, projectID string, withMembers bool) (domain.Project, error) {
	p, err := c.clients.Gateway.GetProject(cmd.Context(), projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if withMembers {
		members, err := c.clients.Gateway.ListMembers(cmd.Context(), projectID)
		if err != nil {
			return domain.Project{}, err
		}
		p.Members = members
	}
	if err := p.Validate(); err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, err)
	}
	return p, nil
}

func statsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [project-id]",
		Short: "Show task counts per status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.clients.Gateway.ProjectStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range domain.Statuses {
				fmt.Fprintf(out, "%-12s %3d  %3d%%\n", s.Label(), stats.Count(s), stats.Percent(s))
			}
			fmt.Fprintf(out, "%-12s %3d\n", "Total", stats.Total)
			return nil
		},
	}
}

func exportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [project-id]",
		Short: "Download a project and its tasks as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := board.New(args[0], c.clients.Gateway, board.Options{Logger: c.clients.Logger})
			defer b.Close()
			if err := b.Load(cmd.Context()); err != nil {
				return err
			}
			doc, name, err := b.Export()
			if err != nil {
				return err
			}
			data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			path := filepath.Join(dir, name)
			if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tasks to %s\n", len(doc.Tasks), path)
			return nil
		},
	}
	cmd.Flags().StringP("dir", "d", ".", "Directory to write the export into")
	return cmd
}
