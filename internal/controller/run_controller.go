// internal/controller/run_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/bulk-dispatcher/internal/queue"
	"github.com/unclebandit/bulk-dispatcher/internal/service"
)

// RunTracker counts ledger outcomes of the active run as they are published
// on the outcome queue.
type RunTracker struct {
	mu     sync.Mutex
	counts map[string]int
	last   string
}

func NewRunTracker() *RunTracker {
	return &RunTracker{counts: map[string]int{}}
}

// Handle is a queue subscriber.
func (t *RunTracker) Handle(payload any) error {
	e, err := queue.DecodeEntry(payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[e.Status]++
	t.counts["total"]++
	if e.Phone != "" {
		t.last = e.Phone
	}
	return nil
}

func (t *RunTracker) Snapshot() (map[string]int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		cp[k] = v
	}
	return cp, t.last
}

type RunController struct {
	State   *service.RunState
	Tracker *RunTracker
}

// Routes mounts the run endpoints on r.
func (c *RunController) Routes(r chi.Router) {
	r.Get("/run", c.Status)
	r.Post("/run/pause", c.command("p"))
	r.Post("/run/resume", c.command("r"))
	r.Post("/run/cancel", c.command("q"))
}

func (c *RunController) command(cmd string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.State == nil {
			http.Error(w, "no run in progress", http.StatusConflict)
			return
		}
		if c.State.State() == service.StateDrained {
			http.Error(w, "run already finished", http.StatusConflict)
			return
		}
		msg, err := c.State.Apply(cmd)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": msg,
			"state":   c.State.State(),
		})
	}
}

func (c *RunController) Status(w http.ResponseWriter, r *http.Request) {
	state := service.State("idle")
	if c.State != nil {
		state = c.State.State()
	}
	counts := map[string]int{}
	last := ""
	if c.Tracker != nil {
		counts, last = c.Tracker.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"state":      state,
		"counters":   counts,
		"last_phone": last,
	})
}
