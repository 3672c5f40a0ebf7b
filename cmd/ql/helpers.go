package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/app"
	"qualityline/internal/config"
	"qualityline/internal/db"
	"qualityline/internal/engine"
	"qualityline/internal/migrate"
	"qualityline/internal/sampling"
)

// openEngine opens and migrates the workspace database and returns an engine
// bound to the workspace config file, if any. The caller closes the DB.
func openEngine() (engine.Engine, *sql.DB, error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	return engine.New(conn, cfg), conn, nil
}

// withEngine runs fn against the active project, creating it from the
// workspace config when it does not exist yet.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, conn, err := openEngine()
	if err != nil {
		return err
	}
	defer conn.Close()
	_, cfg, err := app.ResolveProjectAndConfig(ctx, e, viper.GetString("project"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e)
}

// offlineEngine serves the pure sampling commands, which need a config but
// no database.
func offlineEngine() (engine.Engine, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return engine.Engine{}, err
	}
	if cfg == nil {
		cfg = config.Default("default")
	}
	return engine.Engine{Config: cfg}, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func renderLimits(tw table.Writer, limits sampling.Limits) {
	tw.AppendHeader(table.Row{"Class", "n", "AQL", "Ac", "Re"})
	for _, row := range []struct {
		name  string
		limit sampling.Limit
	}{
		{"critical", limits.Critical},
		{"major", limits.Major},
		{"minor", limits.Minor},
	} {
		tw.AppendRow(table.Row{row.name, row.limit.N, row.limit.AQL.String(), row.limit.Ac, row.limit.Re})
	}
	tw.Render()
}

// optionalFloat returns nil unless the flag was set on the command line.
func optionalFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return nil
	}
	return &v
}

func readJSONFile(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if strings.TrimSpace(path) == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
