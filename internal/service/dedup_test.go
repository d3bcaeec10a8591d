package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/models"
)

type fakeDedupStore struct {
	neighbors  []models.Neighbor
	searchErr  error
	upsertErr  error
	upserts    int
	statusSets map[string]string
}

func (f *fakeDedupStore) UpsertTicketEmbedding(ctx context.Context, ticketID string, vec []float32) error {
	f.upserts++
	return f.upsertErr
}

func (f *fakeDedupStore) NearestTickets(ctx context.Context, orgID string, vec []float32, floor float64, limit int, excludeID string) ([]models.Neighbor, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.neighbors, nil
}

func (f *fakeDedupStore) UpdateTicketStatus(ctx context.Context, id string, status string) error {
	if f.statusSets == nil {
		f.statusSets = map[string]string{}
	}
	f.statusSets[id] = status
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTicket(id string, lat, lon *float64, createdAt time.Time) models.Ticket {
	return models.Ticket{
		ID:          id,
		OrgID:       "org-1",
		Description: "pothole at Broad & Market",
		Category:    "pothole",
		Lat:         lat,
		Lon:         lon,
		Status:      models.StatusPendingDedup,
		CreatedAt:   createdAt,
	}
}

func newEngine(store *fakeDedupStore, cfg DedupConfig) *DedupEngine {
	return &DedupEngine{
		Store:      store,
		Embeddings: fakeEmbedder{},
		Cfg:        cfg,
		Logger:     zerolog.Nop(),
	}
}

func TestDedupDuplicateMergesIntoNearbyRecentMatch(t *testing.T) {
	now := time.Now().UTC()
	parent := newTicket("parent", ptr(40.7589), ptr(-74.1677), now.Add(-time.Hour))
	parent.Status = models.StatusOpen
	store := &fakeDedupStore{
		neighbors: []models.Neighbor{{Ticket: parent, Similarity: 0.9}},
	}
	engine := newEngine(store, testCfg)

	res, err := engine.Dedup(context.Background(), newTicket("child", ptr(40.7589), ptr(-74.1677), now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ShouldMerge || res.ParentTicketID != "parent" {
		t.Fatalf("expected merge into parent, got %+v", res)
	}
	if res.Decision != DecisionDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Decision)
	}
	if store.upserts != 1 {
		t.Fatalf("embedding must be refreshed exactly once, got %d", store.upserts)
	}
	if _, opened := store.statusSets["child"]; opened {
		t.Fatalf("merge path must not open the ticket directly")
	}
}

func TestDedupOutsideGeoWindowSkipsScoring(t *testing.T) {
	now := time.Now().UTC()
	// ~5km away: high text similarity must not rescue it.
	parent := newTicket("parent", ptr(40.8039), ptr(-74.1677), now.Add(-time.Hour))
	store := &fakeDedupStore{
		neighbors: []models.Neighbor{{Ticket: parent, Similarity: 0.9}},
	}
	engine := newEngine(store, testCfg)

	res, err := engine.Dedup(context.Background(), newTicket("child", ptr(40.7589), ptr(-74.1677), now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ShouldMerge {
		t.Fatalf("expected no merge, got %+v", res)
	}
	if res.Decision != DecisionOutsideWindow {
		t.Fatalf("expected %s, got %s", DecisionOutsideWindow, res.Decision)
	}
	if store.statusSets["child"] != models.StatusOpen {
		t.Fatalf("ticket should open as a root, got %q", store.statusSets["child"])
	}
}

func TestDedupNoCandidatesOpensTicket(t *testing.T) {
	store := &fakeDedupStore{}
	engine := newEngine(store, testCfg)

	res, err := engine.Dedup(context.Background(), newTicket("t1", ptr(40.0), ptr(-74.0), time.Now().UTC()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ShouldMerge || res.Decision != DecisionNoCandidates {
		t.Fatalf("expected no_candidates open, got %+v", res)
	}
	if store.statusSets["t1"] != models.StatusOpen {
		t.Fatalf("ticket should be open, got %q", store.statusSets["t1"])
	}
}

func TestDedupBorderlinePolicy(t *testing.T) {
	now := time.Now().UTC()
	parent := newTicket("parent", ptr(40.7589), ptr(-74.1677), now.Add(-time.Hour))
	// 0.7*0.78 + 0.3*1.0 = 0.846: borderline with T=0.85.
	neighbors := []models.Neighbor{{Ticket: parent, Similarity: 0.78}}

	mergeCfg := testCfg
	store := &fakeDedupStore{neighbors: neighbors}
	res, err := newEngine(store, mergeCfg).Dedup(context.Background(), newTicket("child", ptr(40.7589), ptr(-74.1677), now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ShouldMerge || res.Decision != DecisionBorderline {
		t.Fatalf("borderline with merge policy should auto-merge, got %+v", res)
	}

	reviewCfg := testCfg
	reviewCfg.BorderlineMerge = false
	store = &fakeDedupStore{neighbors: neighbors}
	res, err = newEngine(store, reviewCfg).Dedup(context.Background(), newTicket("child", ptr(40.7589), ptr(-74.1677), now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ShouldMerge {
		t.Fatalf("borderline with review policy must not merge, got %+v", res)
	}
	if res.Decision != DecisionBorderlineRev {
		t.Fatalf("expected %s, got %s", DecisionBorderlineRev, res.Decision)
	}
	if store.statusSets["child"] != models.StatusOpen {
		t.Fatalf("review path should open the ticket, got %q", store.statusSets["child"])
	}
}

func TestDedupEmbeddingFailureIsRecoverable(t *testing.T) {
	store := &fakeDedupStore{}
	engine := newEngine(store, testCfg)
	engine.Embeddings = fakeEmbedder{err: errors.New("timeout")}

	_, err := engine.Dedup(context.Background(), newTicket("t1", ptr(40.0), ptr(-74.0), time.Now().UTC()))
	var depErr DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
	if len(store.statusSets) != 0 {
		t.Fatalf("failed dedup must not touch ticket status")
	}
}

func TestDedupSearchFailureIsRecoverable(t *testing.T) {
	store := &fakeDedupStore{searchErr: errors.New("connection refused")}
	engine := newEngine(store, testCfg)

	_, err := engine.Dedup(context.Background(), newTicket("t1", ptr(40.0), ptr(-74.0), time.Now().UTC()))
	var depErr DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
}
