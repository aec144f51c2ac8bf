// Command migrate applies, rolls back, seeds, and reports the Postgres
// schema from the SQL files under ops/migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"custodia.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		dsn     = flag.String("dsn", os.Getenv("CUSTODIA_PG_DSN"), "PostgreSQL DSN")
		sqlDir  = flag.String("migrations", "ops/migrations/sql", "directory of .up.sql/.down.sql pairs")
		seedDir = flag.String("seeds", "ops/migrations/seeds", "directory of seed .sql files")
		timeout = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	if *dsn == "" {
		return fmt.Errorf("missing DSN: provide via -dsn or CUSTODIA_PG_DSN")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		return fmt.Errorf("usage: migrate [flags] up|down|seed|status")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	applier := migrate.New(db, migrate.Dirs{Migrations: *sqlDir, Seeds: *seedDir})

	switch cmd {
	case "up":
		applied, err := applier.Up(ctx)
		if err != nil {
			return err
		}
		report("applied", applied)
	case "down":
		name, err := applier.Down(ctx)
		if err != nil {
			return err
		}
		fmt.Println("rolled back " + name)
	case "seed":
		applied, err := applier.Seed(ctx)
		if err != nil {
			return err
		}
		report("seeded", applied)
	case "status":
		applied, err := applier.Applied(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func report(verb string, names []string) {
	if len(names) == 0 {
		fmt.Println("nothing to do")
		return
	}
	for _, name := range names {
		fmt.Println(verb + " " + name)
	}
}
