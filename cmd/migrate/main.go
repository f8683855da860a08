package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"turbine-platform/internal/config"
	"turbine-platform/pkg/database"
	"turbine-platform/pkg/logging"
	"turbine-platform/pkg/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or revert the turbine platform schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "Migrations directory (default from DB_MIGRATIONS_DIR)")

	for _, direction := range []string{directionUp, directionDown} {
		direction := direction
		root.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run every %s migration", direction),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadConfig()
				if err != nil {
					return errors.Wrap(err, "failed to load configuration")
				}
				if dir == "" {
					dir = cfg.Database.MigrationsDir
				}
				return migrate(cmd.Context(), cfg, dir, direction)
			},
		})
	}

	return root
}

func migrate(ctx context.Context, cfg *config.Config, dir, direction string) error {
	logger, err := logging.NewStructuredLoggerWithOptions("turbine-migrate", "1.0.0", cfg.LoggerOptions())
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}
	defer logger.Close()

	files, err := findMigrations(dir, direction)
	if err != nil {
		return err
	}

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metrics.NewCollector("turbine_migrate"))
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	if err := applyMigrations(ctx, db, files, func(file string) {
		fmt.Printf("Running migration: %s\n", file)
	}); err != nil {
		return err
	}

	fmt.Println("Migration completed successfully")
	return nil
}
