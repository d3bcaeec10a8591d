package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/models"
)

type fakeRecoveryStore struct {
	failures  []models.WorkflowEvent
	tickets   map[string]models.Ticket
	reports   map[string]models.Report
	processed map[string]bool
}

func (f *fakeRecoveryStore) ListUnprocessedFailures(ctx context.Context, limit int) ([]models.WorkflowEvent, error) {
	var out []models.WorkflowEvent
	for _, e := range f.failures {
		if !f.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRecoveryStore) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return models.Ticket{}, errors.New("not found")
	}
	return t, nil
}

func (f *fakeRecoveryStore) GetEarliestReport(ctx context.Context, ticketID string) (models.Report, error) {
	r, ok := f.reports[ticketID]
	if !ok {
		return models.Report{}, errors.New("not found")
	}
	return r, nil
}

func (f *fakeRecoveryStore) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	if f.processed == nil {
		f.processed = map[string]bool{}
	}
	if f.processed[eventID] {
		return false, nil
	}
	f.processed[eventID] = true
	return true, nil
}

func newRecoveryFixture(t *testing.T) (*RecoveryProcessor, *fakeRecoveryStore, *orchestratorFixture) {
	t.Helper()
	of := newOrchestrator(t)
	store := &fakeRecoveryStore{
		failures: []models.WorkflowEvent{{
			ID:        "evt-1",
			TicketID:  "stale-ticket",
			EventType: models.EventWorkflowFailed,
			CreatedAt: time.Now().UTC(),
		}},
		tickets: map[string]models.Ticket{
			"stale-ticket": {ID: "stale-ticket", OrgID: "org-1", Status: models.StatusPendingDedup},
		},
		reports: map[string]models.Report{
			"stale-ticket": {
				ID:         "rep-1",
				TicketID:   "stale-ticket",
				UserID:     "user-1",
				Channel:    models.ChannelSMS,
				Transcript: "pothole at Broad & Market",
			},
		},
		processed: map[string]bool{},
	}
	p := &RecoveryProcessor{Store: store, Orchestrator: of.orch, Logger: zerolog.Nop()}
	return p, store, of
}

func TestReprocessSuccessMarksEvent(t *testing.T) {
	p, store, of := newRecoveryFixture(t)

	res, err := p.Reprocess(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("expected 1 processed, got %+v", res)
	}
	if !store.processed["evt-1"] {
		t.Fatalf("event should be marked processed")
	}
	if len(of.store.tickets) != 1 {
		t.Fatalf("resubmission should have created a fresh ticket")
	}
}

func TestReprocessRepeatedFailureLeavesEventUnprocessed(t *testing.T) {
	p, store, of := newRecoveryFixture(t)
	of.orch.Extractor = fakeExtractor{err: errors.New("still broken")}

	res, err := p.Reprocess(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 0 || res.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", res)
	}
	if store.processed["evt-1"] {
		t.Fatalf("failed resubmission must leave the event for the next batch")
	}
}

func TestReprocessConvergesAcrossBatches(t *testing.T) {
	p, store, of := newRecoveryFixture(t)
	broken := fakeExtractor{err: errors.New("still broken")}
	working := of.orch.Extractor

	of.orch.Extractor = broken
	if res, _ := p.Reprocess(context.Background(), 10); res.Failed != 1 {
		t.Fatalf("first pass should fail")
	}

	of.orch.Extractor = working
	res, err := p.Reprocess(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("second pass should process the event, got %+v", res)
	}

	// A further pass sees nothing to do: processed events are never replayed.
	res, _ = p.Reprocess(context.Background(), 10)
	if res.Processed != 0 || res.Failed != 0 {
		t.Fatalf("processed event was replayed: %+v", res)
	}
	if !store.processed["evt-1"] {
		t.Fatalf("event should remain processed")
	}
}

func TestReprocessRespectsBatchSize(t *testing.T) {
	p, store, _ := newRecoveryFixture(t)
	store.failures = append(store.failures, models.WorkflowEvent{
		ID:        "evt-2",
		TicketID:  "stale-ticket",
		EventType: models.EventWorkflowFailed,
		CreatedAt: time.Now().UTC(),
	})

	res, err := p.Reprocess(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected exactly one event per batch, got %+v", res)
	}
	if store.processed["evt-1"] == store.processed["evt-2"] {
		t.Fatalf("exactly one of the two events should be processed")
	}
}
