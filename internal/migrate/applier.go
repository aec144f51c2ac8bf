// Package migrate applies the SQL migration and seed files under
// ops/migrations against Postgres. Applied files are journaled by base
// name, so reruns are no-ops.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	migrationJournal = "schema_migrations"
	seedJournal      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var ErrNothingApplied = errors.New("migrate: nothing applied")

// Dirs names the flat directories holding migration and seed files.
// Migrations come in NNN_name.up.sql / NNN_name.down.sql pairs; seeds are
// plain .sql files.
type Dirs struct {
	Migrations string
	Seeds      string
}

// Applier runs schema migrations and seeds in file-name order.
type Applier struct {
	db   *sql.DB
	dirs Dirs
}

func New(db *sql.DB, dirs Dirs) *Applier {
	return &Applier{db: db, dirs: dirs}
}

// Up applies every pending migration and returns the names it applied.
func (a *Applier) Up(ctx context.Context) ([]string, error) {
	if err := a.ensureJournals(ctx); err != nil {
		return nil, err
	}
	done, err := a.journaled(ctx, migrationJournal)
	if err != nil {
		return nil, err
	}
	names, err := sqlFiles(a.dirs.Migrations, upSuffix)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := a.applyFile(ctx, filepath.Join(a.dirs.Migrations, name)); err != nil {
			return applied, fmt.Errorf("migrate: apply %s: %w", name, err)
		}
		if err := a.journal(ctx, migrationJournal, name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Down rolls back the most recently applied migration and returns its name.
func (a *Applier) Down(ctx context.Context) (string, error) {
	if err := a.ensureJournals(ctx); err != nil {
		return "", err
	}
	var last string
	err := a.db.QueryRowContext(ctx,
		`select name from `+migrationJournal+` order by applied_at desc limit 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNothingApplied
	}
	if err != nil {
		return "", err
	}
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	path := filepath.Join(a.dirs.Migrations, down)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("migrate: %s has no %s", last, down)
	}
	if err := a.applyFile(ctx, path); err != nil {
		return "", fmt.Errorf("migrate: roll back %s: %w", last, err)
	}
	_, err = a.db.ExecContext(ctx, `delete from `+migrationJournal+` where name = $1`, last)
	return last, err
}

// Seed applies pending seed files and returns the names it applied.
func (a *Applier) Seed(ctx context.Context) ([]string, error) {
	if err := a.ensureJournals(ctx); err != nil {
		return nil, err
	}
	done, err := a.journaled(ctx, seedJournal)
	if err != nil {
		return nil, err
	}
	names, err := sqlFiles(a.dirs.Seeds, ".sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := a.applyFile(ctx, filepath.Join(a.dirs.Seeds, name)); err != nil {
			return applied, fmt.Errorf("migrate: apply seed %s: %w", name, err)
		}
		if err := a.journal(ctx, seedJournal, name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Applied lists journaled migrations oldest first.
func (a *Applier) Applied(ctx context.Context) ([]string, error) {
	if err := a.ensureJournals(ctx); err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx,
		`select name from `+migrationJournal+` order by applied_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *Applier) ensureJournals(ctx context.Context) error {
	for _, table := range []string{migrationJournal, seedJournal} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`
		if _, err := a.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// applyFile runs one file's statements inside a single transaction.
func (a *Applier) applyFile(ctx context.Context, path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(script)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (a *Applier) journal(ctx context.Context, table, name string) error {
	_, err := a.db.ExecContext(ctx,
		`insert into `+table+`(name, applied_at) values ($1, $2)`, name, time.Now().UTC())
	return err
}

func (a *Applier) journaled(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := a.db.QueryContext(ctx, `select name from `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

// sqlFiles lists base names with the given suffix in one flat directory,
// sorted by name. A missing directory reads as empty.
func sqlFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// splitStatements cuts a script into executable statements on semicolons
// outside single-quoted strings. The migrations here use neither
// dollar-quoting nor procedural bodies, so nothing fancier is needed.
func splitStatements(script string) []string {
	var stmts []string
	quoted := false
	start := 0
	for i := 0; i < len(script); i++ {
		switch script[i] {
		case '\'':
			quoted = !quoted
		case ';':
			if quoted {
				continue
			}
			if stmt := strings.TrimSpace(script[start:i]); stmt != "" {
				stmts = append(stmts, stmt)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(script[start:]); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
