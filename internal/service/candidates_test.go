package service

import (
	"testing"
	"time"

	"github.com/civicsense/backend/internal/models"
)

func ptr(v float64) *float64 { return &v }

func poolTicket(id string, lat, lon *float64, age time.Duration, now time.Time) models.Ticket {
	return models.Ticket{
		ID:        id,
		Lat:       lat,
		Lon:       lon,
		Status:    models.StatusOpen,
		CreatedAt: now.Add(-age),
	}
}

func TestSelectCandidatesGate(t *testing.T) {
	now := time.Now().UTC()
	pool := []models.Ticket{
		poolTicket("near-recent", ptr(40.7589), ptr(-74.1677), time.Hour, now),
		poolTicket("too-far", ptr(40.8039), ptr(-74.1677), time.Hour, now),     // ~5km north
		poolTicket("too-old", ptr(40.7589), ptr(-74.1677), 72*time.Hour, now),  // outside W=48h
		poolTicket("no-coords", nil, nil, time.Hour, now),
	}

	cands := SelectCandidates(testCfg, 40.7589, -74.1677, now, pool)
	if len(cands) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(cands))
	}
	if cands[0].Ticket.ID != "near-recent" {
		t.Fatalf("expected near-recent, got %s", cands[0].Ticket.ID)
	}
	if cands[0].DistanceM > 2*testCfg.RadiusM {
		t.Fatalf("candidate outside the gate slipped through: %f m", cands[0].DistanceM)
	}
}

func TestSelectCandidatesOrdering(t *testing.T) {
	now := time.Now().UTC()
	pool := []models.Ticket{
		poolTicket("far-old", ptr(40.7605), ptr(-74.1677), 30*time.Hour, now),
		poolTicket("close-recent", ptr(40.7590), ptr(-74.1677), time.Hour, now),
		poolTicket("close-old", ptr(40.7590), ptr(-74.1677), 30*time.Hour, now),
	}

	cands := SelectCandidates(testCfg, 40.7589, -74.1677, now, pool)
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	if cands[0].Ticket.ID != "close-recent" {
		t.Fatalf("closest and most recent should rank first, got %s", cands[0].Ticket.ID)
	}
	if cands[2].Ticket.ID != "far-old" {
		t.Fatalf("farthest and oldest should rank last, got %s", cands[2].Ticket.ID)
	}
}

func TestWithinGateBoundaries(t *testing.T) {
	if !WithinGate(testCfg, 2*testCfg.RadiusM, testCfg.WindowH) {
		t.Fatalf("distance 2R and age W are inside the gate")
	}
	if WithinGate(testCfg, 2*testCfg.RadiusM+1, 1) {
		t.Fatalf("distance beyond 2R must be outside the gate")
	}
	if WithinGate(testCfg, 1, testCfg.WindowH+0.1) {
		t.Fatalf("age beyond W must be outside the gate")
	}
}
