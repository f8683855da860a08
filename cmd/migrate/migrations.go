package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"turbine-platform/pkg/database"
)

const (
	directionUp   = "up"
	directionDown = "down"
)

// findMigrations lists the migration files of one direction in execution order:
// ascending for up, descending for down
func findMigrations(dir, direction string) ([]string, error) {
	if direction != directionUp && direction != directionDown {
		return nil, errors.Errorf("unknown migration direction %q", direction)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*."+direction+".sql"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no %s migrations found in %s", direction, dir)
	}

	sort.Strings(files)
	if direction == directionDown {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	return files, nil
}

// applyMigrations executes each file as a single statement batch, stopping at the first failure
func applyMigrations(ctx context.Context, db *database.PostgresDB, files []string, before func(file string)) error {
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration %s", file)
		}

		if before != nil {
			before(file)
		}

		if _, err := db.ExecContext(ctx, "migration", string(content)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", file)
		}
	}

	return nil
}
