// Command migrate manages the curia database schema.
//
// Usage:
//
//	migrate [flags] up|down|seed|status
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

	"curia.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("CURIA_DB_DSN"), "PostgreSQL DSN")
		dir     = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seeds   = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
		timeout = flag.Duration("timeout", time.Minute, "Overall command timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CURIA_DB_DSN")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		log.Fatal("usage: migrate [flags] up|down|seed|status")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	if err := dispatch(ctx, migrate.New(db, *dir, *seeds), cmd); err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
}

func dispatch(ctx context.Context, run *migrate.Runner, cmd string) error {
	switch cmd {
	case "up":
		return run.Up(ctx)
	case "down":
		return run.Down(ctx)
	case "seed":
		return run.Seed(ctx)
	case "status":
		applied, err := run.Status(ctx)
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
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
