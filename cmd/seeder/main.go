// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/unclebandit/bulk-dispatcher/internal/config"
	"github.com/unclebandit/bulk-dispatcher/internal/db"
	"github.com/unclebandit/bulk-dispatcher/internal/logger"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
)

func main() {
	logPath := flag.String("log", "sent_log.csv", "CSV delivery log to import")
	driver := flag.String("driver", db.Postgres, "target database driver (postgres or sqlite)")
	dsn := flag.String("dsn", "", "target DSN (defaults to DATABASE_URL)")
	flag.Parse()

	cfg, _, err := config.Load()
	log := logger.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *dsn == "" {
		*dsn = cfg.DatabaseURL
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, *driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", *driver).Msg("failed to open database")
	}
	defer conn.Close()

	n, err := importLog(ctx, repository.NewFileLedger(*logPath), repository.NewSQLLedger(conn, *driver))
	if err != nil {
		log.Fatal().Err(err).Str("log", *logPath).Int("imported", n).Msg("import failed")
	}
	fmt.Printf("Imported %d entries from %s\n", n, *logPath)
}
