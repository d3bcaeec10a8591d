package service

import (
	"sort"
	"time"

	"github.com/civicsense/backend/internal/models"
	"github.com/civicsense/backend/internal/utils"
)

// Candidate is a parent-eligible ticket annotated with spatial distance and
// age relative to the incoming ticket.
type Candidate struct {
	Ticket    models.Ticket
	DistanceM float64
	AgeHours  float64
}

// WithinGate applies the dedup window: distance at most 2R, age at most W.
func WithinGate(cfg DedupConfig, distanceM, ageHours float64) bool {
	return distanceM <= 2*cfg.RadiusM && ageHours <= cfg.WindowH
}

// SelectCandidates narrows a pool of open root tickets to plausible
// duplicates of a ticket at (lat, lon) created at createdAt. Candidates
// missing coordinates are excluded. The result is ordered by a
// proximity-recency composite so the closest, most recent candidate ranks
// first.
func SelectCandidates(cfg DedupConfig, lat, lon float64, createdAt time.Time, pool []models.Ticket) []Candidate {
	var out []Candidate
	for _, t := range pool {
		if !t.HasCoords() {
			continue
		}
		dist := utils.HaversineM(lat, lon, *t.Lat, *t.Lon)
		age := createdAt.Sub(t.CreatedAt).Hours()
		if age < 0 {
			age = -age
		}
		if !WithinGate(cfg, dist, age) {
			continue
		}
		out = append(out, Candidate{Ticket: t, DistanceM: dist, AgeHours: age})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return candidateRank(out[i]) > candidateRank(out[j])
	})
	return out
}

func candidateRank(c Candidate) float64 {
	return 1 / (c.DistanceM + 1) * (1 / (c.AgeHours + 1))
}
