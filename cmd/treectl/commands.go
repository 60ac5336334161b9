package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ammiranda/ordered_tree/config"
	"github.com/ammiranda/ordered_tree/engine"
	"github.com/ammiranda/ordered_tree/handlers"
	"github.com/ammiranda/ordered_tree/internal/txretry"
	"github.com/ammiranda/ordered_tree/migrations"
	"github.com/ammiranda/ordered_tree/models"
	"github.com/ammiranda/ordered_tree/repository"

	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once flags are parsed
type app struct {
	out    io.Writer
	kind   string
	logger *slog.Logger
	cfg    *config.DatabaseConfig
	db     *repository.Database
	svc    handlers.Service

	// openService is replaced in tests
	openService func(ctx context.Context, a *app) (handlers.Service, error)
}

func newApp(out io.Writer) *app {
	return &app{out: out, openService: openService}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "treectl",
		Short:        "Inspect and reposition nodes of the definitions and components trees",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.kind, "kind", "k", string(repository.Definitions), "hierarchy: definitions or components")
	rootCmd.SetOut(a.out)

	withService := func(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if !repository.Kind(a.kind).Valid() {
				return fmt.Errorf("unknown kind %q", a.kind)
			}
			svc, err := a.openService(cmd.Context(), a)
			if err != nil {
				return err
			}
			a.svc = svc
			defer a.close()
			return run(cmd, args)
		}
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the ordered tree as JSON",
		Args:  cobra.NoArgs,
		RunE: withService(func(cmd *cobra.Command, args []string) error {
			data, err := a.svc.TreeJSON(cmd.Context())
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		}),
	}

	flatCmd := &cobra.Command{
		Use:   "flat",
		Short: "Print one indented line per node, parents before children",
		Args:  cobra.NoArgs,
		RunE: withService(func(cmd *cobra.Command, args []string) error {
			data, err := a.svc.FlatJSON(cmd.Context())
			if err != nil {
				return err
			}
			var rows []struct {
				ID       int64           `json:"id"`
				Position int             `json:"position"`
				Depth    int             `json:"depth"`
				Payload  json.RawMessage `json:"payload"`
			}
			if err := json.Unmarshal(data, &rows); err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(a.out, "%s%d [%d] %s\n", strings.Repeat("  ", r.Depth), r.ID, r.Position, r.Payload)
			}
			return nil
		}),
	}

	var createParent int64
	var createPosition int
	createCmd := &cobra.Command{
		Use:   "create PAYLOAD_JSON",
		Short: "Create a node; without --parent it becomes a root, without --position it is appended",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"payload": json.RawMessage(args[0])}
			if cmd.Flags().Changed("parent") {
				req["parentId"] = createParent
			}
			if cmd.Flags().Changed("position") {
				req["position"] = createPosition
			}
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			node, err := a.svc.Create(cmd.Context(), body)
			if err != nil {
				return err
			}
			return json.NewEncoder(a.out).Encode(node)
		}),
	}
	createCmd.Flags().Int64Var(&createParent, "parent", 0, "parent node ID")
	createCmd.Flags().IntVar(&createPosition, "position", 0, "insertion index among the siblings")

	var moveParent int64
	var movePosition int
	moveCmd := &cobra.Command{
		Use:   "move ID",
		Short: "Move a node under --parent (a root when omitted) at --position",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid node id %q", args[0])
			}
			req := models.MoveNodeRequest{Position: movePosition}
			if cmd.Flags().Changed("parent") {
				req.ParentID = &moveParent
			}
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			if err := a.svc.Move(cmd.Context(), id, body); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "moved %d\n", id)
			return nil
		}),
	}
	moveCmd.Flags().Int64Var(&moveParent, "parent", 0, "new parent node ID")
	moveCmd.Flags().IntVar(&movePosition, "position", 0, "insertion index among the new siblings")

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a node and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid node id %q", args[0])
			}
			if err := a.svc.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %d\n", id)
			return nil
		}),
	}

	rootCmd.AddCommand(treeCmd, flatCmd, createCmd, moveCmd, deleteCmd, newMigrateCmd(a))
	return rootCmd
}

func newMigrateCmd(a *app) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage schema migrations",
	}

	withConfig := func(run func(cmd *cobra.Command, driver, dsn string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd.Context()); err != nil {
				return err
			}
			return run(cmd, a.cfg.Driver, repository.DSN(a.cfg))
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, driver, dsn string) error {
			if err := migrations.RunMigrations(driver, dsn); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "migrations applied")
			return nil
		}),
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, driver, dsn string) error {
			if err := migrations.RollbackMigration(driver, dsn); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "rolled back one migration")
			return nil
		}),
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, driver, dsn string) error {
			v, dirty, err := migrations.Version(driver, dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "version %d (dirty: %t)\n", v, dirty)
			return nil
		}),
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func (a *app) loadConfig(ctx context.Context) error {
	provider, err := config.NewProvider("")
	if err != nil {
		return err
	}
	if a.logger == nil {
		a.logger = config.NewLogger(ctx, provider)
	}
	cfg, err := config.GetDatabaseConfig(ctx, provider)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func openService(ctx context.Context, a *app) (handlers.Service, error) {
	if err := a.loadConfig(ctx); err != nil {
		return nil, err
	}
	db, err := repository.Open(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	return newService(repository.Kind(a.kind), db.Repository(repository.Kind(a.kind)), a.logger), nil
}

// newService binds a repository to the engine for its payload type. The CLI
// runs without a tree cache.
func newService(kind repository.Kind, repo repository.Repository, logger *slog.Logger) handlers.Service {
	retrier := txretry.New(0, logger)
	if kind == repository.Components {
		return handlers.NewTreeService(engine.New[models.Component](repo, engine.WithLogger(logger)), nil, retrier, logger)
	}
	return handlers.NewTreeService(engine.New[models.Definition](repo, engine.WithLogger(logger)), nil, retrier, logger)
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
		a.db = nil
	}
}
