package memory

import (
	"context"
	"time"

	"bookingengine/internal/app/outbox"
)

const (
	rowNew     = "NEW"
	rowClaimed = "CLAIMED"
	rowSent    = "SENT"
	rowFailed  = "FAILED"
)

type outboxRow struct {
	record      outbox.EventRecord
	state       string
	attempts    int
	nextAttempt time.Time
	claimedBy   string
	lastError   string
}

func (s *Store) enqueue(records []outbox.EventRecord) {
	if len(records) == 0 {
		return
	}
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()
	for _, rec := range records {
		s.outbox = append(s.outbox, &outboxRow{record: rec, state: rowNew})
	}
}

// Claim hands out the oldest record that is new or due for retry.
func (s *Store) Claim(_ context.Context, workerID string) (*outbox.Pending, error) {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()
	now := time.Now()
	for _, row := range s.outbox {
		if row.state == rowNew || (row.state == rowFailed && !row.nextAttempt.After(now)) {
			row.state = rowClaimed
			row.claimedBy = workerID
			row.attempts++
			return &outbox.Pending{EventRecord: row.record, Attempts: row.attempts}, nil
		}
	}
	return nil, nil
}

func (s *Store) MarkSent(_ context.Context, id string) error {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()
	for i, row := range s.outbox {
		if row.record.ID == id {
			row.state = rowSent
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, next time.Time, errMsg string) error {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()
	for _, row := range s.outbox {
		if row.record.ID == id {
			row.state = rowFailed
			row.nextAttempt = next
			row.lastError = errMsg
			row.claimedBy = ""
			return nil
		}
	}
	return nil
}

// PendingOutbox returns the committed records that have not been sent yet.
func (s *Store) PendingOutbox() []outbox.EventRecord {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()
	out := make([]outbox.EventRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		out = append(out, row.record)
	}
	return out
}

var _ outbox.Relay = (*Store)(nil)
