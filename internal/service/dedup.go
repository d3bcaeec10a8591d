package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/ai"
	"github.com/civicsense/backend/internal/models"
)

const (
	DecisionNoCandidates  = "no_candidates"
	DecisionOutsideWindow = "outside_geo_time_window"
	DecisionBorderlineRev = "borderline_review"
)

const nearestNeighborLimit = 5

// DedupStore is the slice of persistence the engine needs.
type DedupStore interface {
	UpsertTicketEmbedding(ctx context.Context, ticketID string, vec []float32) error
	NearestTickets(ctx context.Context, orgID string, vec []float32, floor float64, limit int, excludeID string) ([]models.Neighbor, error)
	UpdateTicketStatus(ctx context.Context, id string, status string) error
}

type DedupEngine struct {
	Store      DedupStore
	Embeddings ai.EmbeddingProvider
	Cfg        DedupConfig
	Logger     zerolog.Logger
}

type DedupResult struct {
	ShouldMerge    bool    `json:"should_merge"`
	ParentTicketID string  `json:"parent_ticket_id,omitempty"`
	Decision       string  `json:"decision"`
	Score          float64 `json:"score,omitempty"`
	TextSimilarity float64 `json:"text_similarity,omitempty"`
	DistanceM      float64 `json:"distance_m,omitempty"`
	AgeHours       float64 `json:"age_hours,omitempty"`
}

// EmbeddingText is the canonical text a ticket is embedded from.
func EmbeddingText(t models.Ticket) string {
	parts := []string{t.Description}
	if t.Category != "" {
		parts = append(parts, t.Category)
	}
	if t.CrossStreet != "" {
		parts = append(parts, t.CrossStreet)
	}
	return strings.Join(parts, " | ")
}

// Dedup refreshes the ticket's embedding, finds the most similar open root
// ticket and decides whether the new ticket duplicates it. On a non-merge
// outcome the ticket is opened as a root. Errors leave the ticket status
// untouched; the caller must treat them as recoverable failures.
func (e *DedupEngine) Dedup(ctx context.Context, ticket models.Ticket) (DedupResult, error) {
	vec, err := e.Embeddings.Embed(ctx, EmbeddingText(ticket))
	if err != nil {
		return DedupResult{}, DependencyError{Op: "embedding", Err: err}
	}
	if err := e.Store.UpsertTicketEmbedding(ctx, ticket.ID, vec); err != nil {
		return DedupResult{}, DependencyError{Op: "embedding upsert", Err: err}
	}

	neighbors, err := e.Store.NearestTickets(ctx, ticket.OrgID, vec, e.Cfg.SimilarityFloor, nearestNeighborLimit, ticket.ID)
	if err != nil {
		return DedupResult{}, DependencyError{Op: "nearest-neighbor search", Err: err}
	}
	if len(neighbors) == 0 {
		return e.open(ctx, ticket, DedupResult{Decision: DecisionNoCandidates})
	}

	match := neighbors[0]
	res := DedupResult{TextSimilarity: match.Similarity}

	// When either side lacks coordinates the geo gate cannot run; score
	// with a distance pinned to 2R so the geo factor stays conservative.
	res.DistanceM = 2 * e.Cfg.RadiusM
	res.AgeHours = ageHours(ticket, match.Ticket)
	if ticket.HasCoords() && match.Ticket.HasCoords() {
		cands := SelectCandidates(e.Cfg, *ticket.Lat, *ticket.Lon, ticket.CreatedAt, []models.Ticket{match.Ticket})
		if len(cands) == 0 {
			res.Decision = DecisionOutsideWindow
			return e.open(ctx, ticket, res)
		}
		res.DistanceM = cands[0].DistanceM
		res.AgeHours = cands[0].AgeHours
	}

	score, decision := Score(e.Cfg, match.Similarity, res.DistanceM, res.AgeHours)
	res.Score = score
	res.Decision = decision

	switch decision {
	case DecisionDuplicate:
		res.ShouldMerge = true
		res.ParentTicketID = match.Ticket.ID
	case DecisionBorderline:
		if e.Cfg.BorderlineMerge {
			res.ShouldMerge = true
			res.ParentTicketID = match.Ticket.ID
		} else {
			res.Decision = DecisionBorderlineRev
			return e.open(ctx, ticket, res)
		}
	default:
		return e.open(ctx, ticket, res)
	}

	e.Logger.Info().
		Str("ticket_id", ticket.ID).
		Str("parent_id", res.ParentTicketID).
		Str("decision", res.Decision).
		Float64("score", res.Score).
		Msg("dedup decision")
	return res, nil
}

func (e *DedupEngine) open(ctx context.Context, ticket models.Ticket, res DedupResult) (DedupResult, error) {
	if err := e.Store.UpdateTicketStatus(ctx, ticket.ID, models.StatusOpen); err != nil {
		return DedupResult{}, DependencyError{Op: "ticket open", Err: err}
	}
	e.Logger.Info().
		Str("ticket_id", ticket.ID).
		Str("decision", res.Decision).
		Msg("dedup decision")
	return res, nil
}

func ageHours(a, b models.Ticket) float64 {
	h := a.CreatedAt.Sub(b.CreatedAt).Hours()
	if h < 0 {
		return -h
	}
	return h
}
