package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upSuffix = ".up.sql"

// Migrate applies the *.up.sql files of fsys that schema_migrations does not
// list yet, each in its own transaction, and returns the versions it applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	done, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	files, err := UpFiles(fsys)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range Outstanding(files, done) {
		sql, err := fs.ReadFile(fsys, version+upSuffix)
		if err != nil {
			return applied, err
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// UpFiles lists the up migrations in fsys in lexical order.
func UpFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), upSuffix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Outstanding returns the versions of files not present in done, in order.
func Outstanding(files, done []string) []string {
	seen := make(map[string]bool, len(done))
	for _, v := range done {
		seen[v] = true
	}
	var out []string
	for _, f := range files {
		if v := strings.TrimSuffix(f, upSuffix); !seen[v] {
			out = append(out, v)
		}
	}
	return out
}
