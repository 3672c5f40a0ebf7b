package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/config"
	"qualityline/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, conn, err := openEngine()
			if err != nil {
				return err
			}
			defer conn.Close()
			items, err := e.Repo.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Status", "Description", "Created"})
			for _, p := range items {
				tw.AppendRow(table.Row{p.ID, p.Status, p.Description, p.CreatedAt})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func projectInitCmd() *cobra.Command {
	var id, desc string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project from qualityline.yml (or the defaults) and make the actor its owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, conn, err := openEngine()
			if err != nil {
				return err
			}
			defer conn.Close()
			if id == "" && e.Config != nil {
				id = e.Config.Project.ID
			}
			if id == "" {
				return fmt.Errorf("--id required when the workspace has no qualityline.yml")
			}
			p, err := e.InitProject(cmd.Context(), id, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (defaults to project.id of qualityline.yml)")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				level, _ := e.Config.DefaultLevel()
				aqls, _ := e.Config.AQLs()
				fmt.Printf("Project: %s (%s)\n", p.ID, p.Status)
				fmt.Printf("Default level %s, AQL critical %s / major %s / minor %s\n", level, aqls.Critical, aqls.Major, aqls.Minor)
				fmt.Printf("Checklists: %s\n", strings.Join(e.Config.ChecklistNames(), ", "))
				return nil
			})
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigInitCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show project config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				data, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			})
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projectID := e.Config.Project.ID
				cfg.Project.ID = projectID
				if err := e.UpdateProjectConfig(ctx, projectID, cfg, viper.GetString("actor-id"), nil); err != nil {
					return err
				}
				fmt.Printf("config imported into %s\n", projectID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectConfigInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default qualityline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	return cmd
}
