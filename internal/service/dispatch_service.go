// internal/service/dispatch_service.go
package service

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/bulk-dispatcher/internal/errors"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
	"github.com/unclebandit/bulk-dispatcher/internal/queue"
	"github.com/unclebandit/bulk-dispatcher/internal/repository"
)

const DefaultOutcomeTopic = "dispatch_outcomes"

// DispatchService owns the worker pool that sends one templated message per
// recipient. Configure the fields before calling Run; they are read-only
// while a run is in progress.
type DispatchService struct {
	Ledger repository.Ledger
	Sender Sender
	Queue  queue.Queue // optional outcome events
	Log    zerolog.Logger
	Out    io.Writer // operator trace, one line per outcome

	Namespace    string
	Language     string
	OutcomeTopic string
	SubmitDelay  time.Duration

	// Shuffle overrides the random permutation used by randomized runs.
	Shuffle func(n int, swap func(i, j int))

	outMu sync.Mutex
	now   func() time.Time
}

type RunOptions struct {
	Workers   int
	Randomize bool
	Commands  CommandSource // optional operator command source
}

// runContext is the read-only state shared by the workers of one run, plus
// the summary they update.
type runContext struct {
	state           *RunState
	mapping         model.ColumnMapping
	profile         model.Profile
	suppressDetails bool

	mu      sync.Mutex
	summary *model.Summary
}

func (rc *runContext) tally(r result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if r.cancelled {
		rc.summary.Cancelled++
		return
	}
	rc.summary.ByStatus[r.status]++
	switch {
	case r.status == model.StatusDelivered:
		rc.summary.Delivered++
	case r.status == model.StatusSkipped:
		rc.summary.Skipped++
	case r.status == model.StatusException:
		rc.summary.Errors++
	case strings.HasPrefix(r.status, "error_"):
		rc.summary.Rejected++
	}
}

func (s *DispatchService) log() *zerolog.Logger {
	return &s.Log
}

func (s *DispatchService) language() string {
	if s.Language == "" {
		return "pt_BR"
	}
	return s.Language
}

func (s *DispatchService) topic() string {
	if s.OutcomeTopic == "" {
		return DefaultOutcomeTopic
	}
	return s.OutcomeTopic
}

func (s *DispatchService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Run dispatches recipients and blocks until every submitted send has
// finished. Only load-time failures (invalid mapping, unreadable ledger) are
// returned as errors; per-recipient failures end up in the ledger and the
// summary.
func (s *DispatchService) Run(ctx context.Context, state *RunState, recipients []model.Recipient, mapping model.ColumnMapping, profile model.Profile, opts RunOptions) (*model.Summary, error) {
	if err := ValidateMapping(mapping); err != nil {
		return nil, err
	}
	if s.Namespace == "" {
		s.Namespace = NewNamespace()
	}
	if state == nil {
		state = NewRunState()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	summary := model.NewSummary(s.Namespace)
	summary.Total = len(recipients)

	sent, err := s.Ledger.AlreadySent(ctx)
	if err != nil {
		return nil, appErrors.NewLoadError("ledger", err)
	}
	pending := FilterSent(recipients, sent)
	summary.Filtered = len(recipients) - len(pending)

	if opts.Randomize {
		shuffle := s.Shuffle
		if shuffle == nil {
			shuffle = rand.Shuffle
		}
		shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })
	}
	pending = AssignTemplates(pending, profile.Templates)

	rc := &runContext{
		state:           state,
		mapping:         mapping,
		profile:         profile,
		suppressDetails: opts.Randomize,
		summary:         summary,
	}

	s.Log.Info().
		Int("recipients", len(pending)).
		Int("filtered", summary.Filtered).
		Int("workers", workers).
		Bool("randomize", opts.Randomize).
		Str("namespace", s.Namespace).
		Msg("dispatch started")
	s.trace("Sending to %d recipients...", len(pending))
	s.trace("Using namespace: %s", s.Namespace)

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	if opts.Commands != nil {
		go Listen(listenCtx, state, opts.Commands, s.Out)
	}

	// Translate caller cancellation (e.g. SIGINT) into a cooperative cancel.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			state.Cancel()
		case <-finished:
		}
	}()

	jobs := make(chan job)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			s.worker(ctx, idx, rc, jobs)
		}(i)
	}

	submitted := s.feed(state, pending, jobs)
	close(jobs)
	wg.Wait()
	state.MarkDrained()

	summary.Submitted = submitted
	summary.DoneAt = s.clock()

	s.Log.Info().
		Int("submitted", summary.Submitted).
		Int("delivered", summary.Delivered).
		Int("rejected", summary.Rejected).
		Int("errors", summary.Errors).
		Int("skipped", summary.Skipped).
		Int("cancelled", summary.Cancelled).
		Dur("took", summary.DoneAt.Sub(summary.StartedAt)).
		Msg("dispatch finished")
	if state.Cancelled() {
		s.trace("Dispatch interrupted.")
	} else {
		s.trace("Dispatch finished.")
	}
	return summary, nil
}

// feed hands recipients to the pool one by one until they run out or the run
// is cancelled. It returns how many were handed over.
func (s *DispatchService) feed(state *RunState, pending []model.Recipient, jobs chan<- job) int {
	n := 0
	for _, rec := range pending {
		if state.Cancelled() {
			break
		}
		select {
		case jobs <- job{recipient: rec}:
			n++
		case <-state.Done():
			return n
		}
		if s.SubmitDelay > 0 {
			t := time.NewTimer(s.SubmitDelay)
			select {
			case <-t.C:
			case <-state.Done():
				t.Stop()
				return n
			}
		}
	}
	return n
}

// FilterSent drops recipients whose phone already appears in sent, keeping
// input order. A phone also matches its sanitized form, which is how the file
// ledger stores identifiers containing separators.
func FilterSent(recipients []model.Recipient, sent map[string]struct{}) []model.Recipient {
	out := make([]model.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if phone := r.Phone(); phone != "" && alreadySent(sent, phone) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func alreadySent(sent map[string]struct{}, phone string) bool {
	if _, ok := sent[phone]; ok {
		return true
	}
	_, ok := sent[repository.SanitizeField(phone)]
	return ok
}

// FormatSummary renders a summary for the operator console.
func FormatSummary(s *model.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "namespace=%s total=%d already_sent=%d submitted=%d\n", s.Namespace, s.Total, s.Filtered, s.Submitted)
	fmt.Fprintf(&b, "delivered=%d rejected=%d errors=%d skipped=%d cancelled=%d", s.Delivered, s.Rejected, s.Errors, s.Skipped, s.Cancelled)
	return b.String()
}
