// eavctl is the operator CLI for the dynamic attribute store: it runs the
// staged storage migrations, registers entity types and attribute
// definitions, and bulk-imports attribute values.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Philodoescode/UUMS-sub003/internal/config"
	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
	"github.com/Philodoescode/UUMS-sub003/internal/exporter"
	"github.com/Philodoescode/UUMS-sub003/internal/importer"
	"github.com/Philodoescode/UUMS-sub003/internal/migrator"
	"github.com/Philodoescode/UUMS-sub003/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configPath string

	log  *zap.Logger
	conn *db.Connection
}

// setup connects, applies the catalog migrations and builds the logger. The
// catalog migrations are idempotent, so running them before every command is
// safe.
func (a *app) setup(ctx context.Context) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.log = log

	cfg, err := config.LoadDBConfig(a.configPath)
	if err != nil {
		return err
	}

	if err := db.RunMigrations(cfg); err != nil {
		return err
	}

	conn, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return err
	}
	a.conn = conn
	return nil
}

func (a *app) close() {
	if a.conn != nil {
		a.conn.Close()
	}
	if a.log != nil {
		a.log.Sync()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "eavctl",
		Short:         "Manage the dynamic attribute store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", ".", "directory containing config.yaml")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newRegisterCmd(a))
	root.AddCommand(newDefineCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newExportCmd(a))
	return root
}

// buildSteps assembles the step sequence for this deployment: the generic
// bootstrap, then an introduction per entity type, then the retirements. The
// sequence must stay identical between runs or the journal check fails.
func buildSteps(introduce, retire []string) ([]migrator.Step, error) {
	steps := []migrator.Step{migrator.NewBootstrapStep()}
	for _, raw := range introduce {
		kind := domain.OwnerKind(strings.TrimSpace(raw))
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, raw)
		}
		steps = append(steps, migrator.NewIntroduceStep(kind))
	}
	for _, raw := range retire {
		kind := domain.OwnerKind(strings.TrimSpace(raw))
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, raw)
		}
		steps = append(steps, migrator.NewRetireStep(kind))
	}
	return steps, nil
}

func newMigrateCmd(a *app) *cobra.Command {
	var introduce, retire []string

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run the staged value store migrations",
	}
	migrate.PersistentFlags().StringSliceVar(&introduce, "introduce", nil, "entity types to move onto dedicated tables")
	migrate.PersistentFlags().StringSliceVar(&retire, "retire", nil, "entity types whose generic rows are retired")

	withMigrator := func(run func(ctx context.Context, m *migrator.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()

			steps, err := buildSteps(introduce, retire)
			if err != nil {
				return err
			}
			return run(ctx, migrator.New(a.conn, a.log, steps...))
		}
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending steps",
		RunE: withMigrator(func(ctx context.Context, m *migrator.Migrator) error {
			return m.Up(ctx)
		}),
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied step",
		RunE: withMigrator(func(ctx context.Context, m *migrator.Migrator) error {
			return m.Down(ctx)
		}),
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied steps",
		RunE: withMigrator(func(ctx context.Context, m *migrator.Migrator) error {
			applied, err := m.Status(ctx)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("no steps applied")
				return nil
			}
			for _, step := range applied {
				fmt.Printf("%3d  %-40s %s\n", step.Version, step.Name, step.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}),
	})
	return migrate
}

func newRegisterCmd(a *app) *cobra.Command {
	var table, description string

	cmd := &cobra.Command{
		Use:   "register <kind>",
		Short: "Register an entity type (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()

			registry := repository.NewEntityTypeRepository(a.conn)
			et, err := registry.Register(ctx, domain.OwnerKind(args[0]), table, description)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", et.Name, et.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "backing table name")
	cmd.Flags().StringVar(&description, "description", "", "entity type description")
	cmd.MarkFlagRequired("table")
	return cmd
}

func newDefineCmd(a *app) *cobra.Command {
	var declaredType, rules string
	var multi bool
	var sortOrder int

	cmd := &cobra.Command{
		Use:   "define <kind> <attribute>",
		Short: "Define an attribute for an entity type (idempotent)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()

			registry := repository.NewEntityTypeRepository(a.conn)
			et, err := registry.Resolve(ctx, domain.OwnerKind(args[0]))
			if err != nil {
				return err
			}

			cardinality := domain.CardinalitySingle
			if multi {
				cardinality = domain.CardinalityMulti
			}
			var validation domain.ValidationRules
			if rules != "" {
				validation = domain.ValidationRules(json.RawMessage(rules))
			}

			catalog := repository.NewAttributeDefinitionRepository(a.conn)
			def, err := catalog.Define(ctx, et.ID, args[1], domain.DeclaredType(declaredType), cardinality, validation, sortOrder)
			if err != nil {
				return err
			}
			fmt.Printf("%s.%s (%s) -> %s\n", et.Name, def.Name, def.DeclaredType, def.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&declaredType, "type", "", "declared type (string|integer|decimal|boolean|date|datetime|text|json)")
	cmd.Flags().BoolVar(&multi, "multi", false, "allow multiple values per owner")
	cmd.Flags().IntVar(&sortOrder, "sort", 0, "display sort order")
	cmd.Flags().StringVar(&rules, "rules", "", "opaque validation rules (JSON)")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-import attribute values from CSV or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			service := importer.NewService(
				repository.NewEntityTypeRepository(a.conn),
				repository.NewAttributeDefinitionRepository(a.conn),
				repository.NewGenericValueRepository(a.conn),
				a.log,
			)
			report, err := service.Import(ctx, importer.Request{
				FileName: file,
				Data:     f,
				DryRun:   dryRun,
			})
			if err != nil {
				return err
			}

			fmt.Printf("processed %d rows, applied %d", report.Processed, report.Applied)
			if dryRun {
				fmt.Print(" (dry run, nothing written)")
			}
			fmt.Println()
			for _, rowErr := range report.Errors {
				fmt.Printf("row %d: %s\n", rowErr.Row, rowErr.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to .csv or .xlsx input")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and validate every row but write nothing")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export <kind>",
		Short: "Export an entity type's attribute values to CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()

			f, err := os.Create(file)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()

			service := exporter.NewService(a.conn, repository.NewEntityTypeRepository(a.conn), a.log)
			rows, err := service.Export(ctx, f, domain.OwnerKind(args[0]), file)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d rows to %s\n", rows, file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to .csv or .xlsx output")
	cmd.MarkFlagRequired("file")
	return cmd
}
