// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/bulk-dispatcher/internal/config"
	"github.com/unclebandit/bulk-dispatcher/internal/controller"
	"github.com/unclebandit/bulk-dispatcher/internal/handler"
	"github.com/unclebandit/bulk-dispatcher/internal/logger"
	"github.com/unclebandit/bulk-dispatcher/internal/queue"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
	"github.com/unclebandit/bulk-dispatcher/internal/service"
	"github.com/unclebandit/bulk-dispatcher/internal/transport"
)

func main() {
	profileName := flag.String("profile", "", "profile to send with")
	csvPath := flag.String("csv", "", "recipients CSV")
	columns := flag.String("columns", "", "comma-separated columns passed as template parameters, in order")
	workers := flag.Int("workers", 0, "concurrent sends (defaults to WORKERS)")
	random := flag.Bool("random", false, "shuffle recipients and keep only status in the log")
	flag.Parse()

	// Load .env
	cfg, foundEnv, err := config.Load()
	log := logger.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !foundEnv {
		log.Info().Msg("no .env file found, relying on OS environment variables")
	}
	if *profileName == "" || *csvPath == "" || *columns == "" {
		log.Fatal().Msg("-profile, -csv and -columns are required")
	}
	if *workers < 1 {
		*workers = cfg.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := repository.OpenLedger(ctx, cfg.LedgerDriver, cfg.LedgerPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.LedgerDriver).Msg("failed to open ledger")
	}
	defer closeLedger()

	profile, err := (&repository.ProfileRepository{Path: cfg.ProfilesFile}).Load(*profileName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load profile")
	}
	headers, recs, err := (&repository.RecipientRepository{}).LoadCSV(*csvPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load recipients")
	}
	mapping, err := parseColumns(*columns, headers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -columns")
	}

	client, err := transport.New(transport.Options{
		BaseURL:    cfg.APIBaseURL,
		APIVersion: cfg.APIVersion,
		ProxyURL:   cfg.ProxyURL,
		Timeout:    cfg.SendTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport")
	}

	// The tracker only sees this run's events through the in-process queue;
	// the AMQP copy is left for the outcome mirror.
	local := queue.NewInMemoryQueue(log)
	tracker := controller.NewRunTracker()
	if err := local.Subscribe(cfg.OutcomeQueue, tracker.Handle); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe run tracker")
	}
	var q queue.Queue = local
	if cfg.AMQPURL != "" {
		aq, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to outcome queue")
		}
		defer aq.Close()
		q = queue.Tee{local, aq}
	}

	state := service.NewRunState()
	runController := &controller.RunController{State: state, Tracker: tracker}
	ledgerHandler := handler.NewLedgerHandler(ledger, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Run routes
	runController.Routes(r)
	r.Get("/ledger/stats", ledgerHandler.StatsHandler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("control server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("control server failed")
			stop()
		}
	}()

	svc := &service.DispatchService{
		Ledger:       ledger,
		Sender:       client,
		Queue:        q,
		Log:          log,
		Out:          os.Stdout,
		Language:     cfg.TemplateLang,
		OutcomeTopic: cfg.OutcomeQueue,
		SubmitDelay:  cfg.SubmitDelay,
	}
	summary, err := svc.Run(ctx, state, recs, mapping, *profile, service.RunOptions{
		Workers:   *workers,
		Randomize: *random,
		Commands:  service.LineSource{R: os.Stdin},
	})
	if err != nil {
		log.Error().Err(err).Msg("dispatch aborted")
	} else {
		log.Info().Msg(service.FormatSummary(summary))
	}

	// Keep serving stats until interrupted.
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
