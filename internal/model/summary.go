// internal/model/summary.go
package model

import "time"

// Summary aggregates the outcomes of one dispatch run.
type Summary struct {
	Namespace string         `json:"namespace"`
	Total     int            `json:"total"`     // recipients handed to the engine
	Filtered  int            `json:"filtered"`  // dropped because already in the ledger
	Submitted int            `json:"submitted"` // handed to a worker
	Delivered int            `json:"delivered"`
	Rejected  int            `json:"rejected"`
	Errors    int            `json:"errors"`
	Skipped   int            `json:"skipped"`
	Cancelled int            `json:"cancelled"` // dequeued after cancel, never sent
	ByStatus  map[string]int `json:"by_status"`
	StartedAt time.Time      `json:"started_at"`
	DoneAt    time.Time      `json:"done_at"`
}

func NewSummary(namespace string) *Summary {
	return &Summary{
		Namespace: namespace,
		ByStatus:  map[string]int{},
		StartedAt: time.Now(),
	}
}

// Sent is the number of recipients that reached the transport.
func (s *Summary) Sent() int {
	return s.Delivered + s.Rejected + s.Errors
}
