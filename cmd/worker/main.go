package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/bulk-dispatcher/internal/config"
	"github.com/unclebandit/bulk-dispatcher/internal/db"
	"github.com/unclebandit/bulk-dispatcher/internal/logger"
	"github.com/unclebandit/bulk-dispatcher/internal/queue"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
)

func main() {
	driver := flag.String("driver", db.Postgres, "mirror database driver (postgres or sqlite)")
	dsn := flag.String("dsn", "", "mirror database DSN (defaults to DATABASE_URL, or LEDGER_PATH for sqlite)")
	flag.Parse()

	cfg, _, err := config.Load()
	log := logger.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required")
	}
	if *dsn == "" {
		*dsn = cfg.DatabaseURL
		if *driver == db.SQLite {
			*dsn = cfg.LedgerPath
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, *driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mirror database")
	}
	defer conn.Close()

	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to outcome queue")
	}
	defer q.Close()

	m := &mirror{Store: repository.NewSQLLedger(conn, *driver), Log: log}
	if err := q.Subscribe(cfg.OutcomeQueue, m.Handle); err != nil {
		log.Fatal().Err(err).Str("queue", cfg.OutcomeQueue).Msg("failed to register consumer")
	}

	log.Info().Str("queue", cfg.OutcomeQueue).Str("driver", *driver).Msg("worker running, waiting for outcomes")
	<-ctx.Done()
	log.Info().Msg("worker stopped")
}
