package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded MySQL schema. Statements are idempotent.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, "migrations/mysql", func(ctx context.Context, stmt string) error {
		_, err := m.db.ExecContext(ctx, stmt)
		return err
	})
}

// Migrate applies the embedded Postgres schema. Statements are idempotent.
func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, "migrations/postgres", func(ctx context.Context, stmt string) error {
		_, err := p.pool.Exec(ctx, stmt)
		return err
	})
}

func applyMigrations(ctx context.Context, dir string, exec func(ctx context.Context, stmt string) error) error {
	names, err := fs.Glob(migrationsFS, dir+"/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if err := exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

// splitStatements cuts a migration file on semicolons. The schema files
// carry no semicolons inside literals.
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
