package service

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// Sender delivers one payload and classifies the result.
type Sender interface {
	Send(ctx context.Context, p model.Payload, endpoint, token string) model.Outcome
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, p model.Payload, endpoint, token string) model.Outcome

func (f SenderFunc) Send(ctx context.Context, p model.Payload, endpoint, token string) model.Outcome {
	return f(ctx, p, endpoint, token)
}

// job is one recipient handed to a worker.
type job struct {
	recipient model.Recipient
}

// result is what a worker reports back for one job.
type result struct {
	status    string
	cancelled bool
}

// worker drains jobs until the channel closes.
func (s *DispatchService) worker(ctx context.Context, idx int, rc *runContext, jobs <-chan job) {
	for j := range jobs {
		res := s.process(ctx, idx, rc, j.recipient)
		rc.tally(res)
	}
}

// process runs the per-recipient send protocol. It never returns an error:
// every failure becomes a ledger entry.
func (s *DispatchService) process(ctx context.Context, idx int, rc *runContext, rec model.Recipient) (res result) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error().Int("worker", idx).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in dispatch worker")
			s.recordPanic(ctx, rc, rec.Phone(), r)
			res = result{status: model.StatusException}
		}
	}()

	// pause and cancel are honoured before anything is written
	if err := rc.state.Wait(ctx); err != nil {
		return result{cancelled: true}
	}

	phone := rec.Phone()
	if phone == "" {
		s.trace("skipping recipient without phone: %v", map[string]string(rec))
		s.record(ctx, rc, "", model.StatusSkipped, "no phone", true)
		return result{status: model.StatusSkipped}
	}
	template := rec.Template()
	if template == "" {
		s.trace("skipping %s: no template_name", phone)
		s.record(ctx, rc, phone, model.StatusSkipped, "no template_name", true)
		return result{status: model.StatusSkipped}
	}

	payload := BuildPayload(rec, rc.mapping, template, s.Namespace, s.language())
	// in-flight sends are not aborted by cancellation
	out := s.Sender.Send(context.WithoutCancel(ctx), payload, rc.profile.PhoneNumberID, rc.profile.Token)

	status := out.Status()
	switch out.Kind {
	case model.TransportError:
		s.trace("error sending to %s: %s", phone, out.Err)
	default:
		s.trace("%s: %d | %s | namespace=%s", phone, out.StatusCode, out.Body, s.Namespace)
	}

	details := out.Details()
	if out.Kind == model.Delivered && rc.suppressDetails {
		details = ""
	}
	s.record(ctx, rc, phone, status, details, false)
	return result{status: status}
}

// record appends to the ledger and publishes the outcome. A ledger failure is
// reported and swallowed; the send outcome stays final.
func (s *DispatchService) record(ctx context.Context, rc *runContext, phone, status, details string, skip bool) {
	if skip && rc.suppressDetails {
		return
	}
	if err := s.Ledger.Record(context.WithoutCancel(ctx), phone, status, details); err != nil {
		s.log().Error().Err(err).Str("phone", phone).Str("status", status).Msg("ledger write failed")
		s.trace("ledger write failed for %s: %v", phone, err)
	}
	if s.Queue != nil {
		entry := model.LedgerEntry{Phone: phone, Status: status, Details: details, Timestamp: s.clock().UTC()}
		if err := s.Queue.Publish(s.topic(), entry); err != nil {
			s.log().Debug().Err(err).Str("phone", phone).Msg("outcome not published")
		}
	}
}

// recordPanic writes the exception entry for a recipient whose processing
// panicked. A second panic from the ledger itself is only logged.
func (s *DispatchService) recordPanic(ctx context.Context, rc *runContext, phone string, r any) {
	defer func() {
		if r2 := recover(); r2 != nil {
			s.log().Error().Interface("panic", r2).Str("phone", phone).Msg("ledger write panicked")
		}
	}()
	s.record(ctx, rc, phone, model.StatusException, fmt.Sprint("panic: ", r), false)
}

func (s *DispatchService) trace(format string, args ...any) {
	if s.Out == nil {
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.Out, format+"\n", args...)
}
