package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulk-dispatcher/internal/config"
	"github.com/unclebandit/bulk-dispatcher/internal/logger"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
	"github.com/unclebandit/bulk-dispatcher/internal/queue"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
	"github.com/unclebandit/bulk-dispatcher/internal/service"
	"github.com/unclebandit/bulk-dispatcher/internal/transport"
)

type app struct {
	cfg        config.Config
	log        zerolog.Logger
	con        *console
	profiles   repository.ProfileRepositoryInterface
	recipients *repository.RecipientRepository
	ledger     repository.Ledger
	sender     service.Sender
	queue      queue.Queue
	namespace  string

	csvPath   string
	randomize bool
}

func main() {
	csvPath := flag.String("csv", "", "recipients CSV (skips the path prompt)")
	random := flag.Bool("random", false, "shuffle recipients and keep only status in the log")
	envFile := flag.String("env", ".env", "dotenv file")
	flag.Parse()

	cfg, foundEnv, err := config.Load(*envFile)
	log := logger.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !foundEnv {
		log.Debug().Str("file", *envFile).Msg("no env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := repository.OpenLedger(ctx, cfg.LedgerDriver, cfg.LedgerPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.LedgerDriver).Msg("failed to open ledger")
	}
	defer closeLedger()

	client, err := transport.New(transport.Options{
		BaseURL:    cfg.APIBaseURL,
		APIVersion: cfg.APIVersion,
		ProxyURL:   cfg.ProxyURL,
		Timeout:    cfg.SendTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport")
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		con:        newConsole(os.Stdin, os.Stdout),
		profiles:   &repository.ProfileRepository{Path: cfg.ProfilesFile},
		recipients: &repository.RecipientRepository{},
		ledger:     ledger,
		sender:     client,
		namespace:  service.NewNamespace(),
		csvPath:    *csvPath,
		randomize:  *random,
	}

	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("outcome queue unavailable, continuing without it")
		} else {
			defer q.Close()
			a.queue = q
		}
	}

	if err := a.menu(ctx); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("dispatcher stopped")
	}
}

func (a *app) menu(ctx context.Context) error {
	for {
		a.con.printf("\n1) Register profile\n2) Send using a CSV of recipients\n3) Quit\n")
		choice, err := a.con.ask(ctx, "Choice: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			err = a.registerProfile(ctx)
		case "2":
			err = a.send(ctx)
		case "3", "q":
			return nil
		default:
			a.con.printf("Invalid option.\n")
			continue
		}
		if err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
				return err
			}
			a.log.Error().Err(err).Msg("operation failed")
			a.con.printf("Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *app) registerProfile(ctx context.Context) error {
	var p model.Profile
	var err error
	if p.Name, err = a.con.askRequired(ctx, "Profile name: "); err != nil {
		return err
	}
	if p.PhoneNumberID, err = a.con.askRequired(ctx, "Phone number id: "); err != nil {
		return err
	}
	if p.Token, err = a.con.askRequired(ctx, "Access token: "); err != nil {
		return err
	}
	raw, err := a.con.ask(ctx, "Templates (comma separated): ")
	if err != nil {
		return err
	}
	p.Templates = repository.ParseTemplates(raw)

	if err := a.profiles.Save(p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	a.log.Info().Str("profile", p.Name).Int("templates", len(p.Templates)).Msg("profile saved")
	a.con.printf("Profile %s saved.\n", p.Name)
	return nil
}

func (a *app) send(ctx context.Context) error {
	names, err := a.profiles.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		a.con.printf("No profiles registered yet.\n")
		return nil
	}
	idx, err := a.con.choose(ctx, "Profiles:", names)
	if err != nil {
		return err
	}
	profile, err := a.profiles.Load(names[idx])
	if err != nil {
		return err
	}

	path := a.csvPath
	if path == "" {
		if path, err = a.con.askRequired(ctx, "Recipients CSV path: "); err != nil {
			return err
		}
	}
	headers, recs, err := a.recipients.LoadCSV(path)
	if err != nil {
		return err
	}
	a.con.printf("%d recipients loaded from %s.\n", len(recs), path)

	mapping, err := a.con.selectColumns(ctx, headers)
	if err != nil {
		return err
	}
	workers, err := a.con.askWorkers(ctx, a.cfg.Workers)
	if err != nil {
		return err
	}

	svc := &service.DispatchService{
		Ledger:       a.ledger,
		Sender:       a.sender,
		Queue:        a.queue,
		Log:          a.log,
		Out:          a.con.out,
		Namespace:    a.namespace,
		Language:     a.cfg.TemplateLang,
		OutcomeTopic: a.cfg.OutcomeQueue,
		SubmitDelay:  a.cfg.SubmitDelay,
	}
	summary, err := svc.Run(ctx, service.NewRunState(), recs, mapping, *profile, service.RunOptions{
		Workers:   workers,
		Randomize: a.randomize,
		Commands:  service.ChanSource(a.con.lines),
	})
	if err != nil {
		return err
	}
	a.printSummary(a.con.out, summary)
	return nil
}

func (a *app) printSummary(w io.Writer, s *model.Summary) {
	fmt.Fprintln(w, service.FormatSummary(s))
	if stats, ok := a.ledger.(repository.LedgerStats); ok {
		if counts, err := stats.Stats(context.Background()); err == nil {
			fmt.Fprintf(w, "ledger entries: %d\n", counts["total"])
		}
	}
}
