package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// RunMigrations applies every *.up.sql file in migrationsDir that is not yet
// recorded in schema_migrations, each in its own transaction, in name order.
// It returns how many were applied.
func RunMigrations(ctx context.Context, pool DB, migrationsDir string, log *zap.Logger) (int, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	versions, err := pendingCandidates(migrationsDir)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, version := range versions {
		var exists bool
		err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)", version).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("check %s: %w", version, err)
		}
		if exists {
			continue
		}
		if err := applyMigration(ctx, pool, migrationsDir, version); err != nil {
			return applied, err
		}
		applied++
		log.Info("migration applied", zap.String("version", version))
	}

	log.Info("migrations done",
		zap.Int("applied", applied),
		zap.Int("up_to_date", len(versions)-applied),
	)
	return applied, nil
}

func pendingCandidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".up.sql"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func applyMigration(ctx context.Context, pool DB, dir, version string) error {
	sql, err := os.ReadFile(filepath.Join(dir, version+".up.sql"))
	if err != nil {
		return fmt.Errorf("read %s: %w", version, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("record %s: %w", version, err)
	}
	return tx.Commit(ctx)
}
