package ai

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/civicsense/backend/internal/models"
	"github.com/civicsense/backend/internal/utils"
)

// MockExtractor is a deterministic stand-in used when no extractor service
// is configured. Same input always produces the same extraction.
type MockExtractor struct{}

func (m MockExtractor) Extract(ctx context.Context, rawText string) (models.Extraction, int64, error) {
	start := time.Now()
	h := utils.HashStringToUint64(rawText)

	categories := []string{"pothole", "streetlight", "graffiti", "trash", "water"}
	category := categories[int(h)%len(categories)]

	crossStreet := ""
	if i := strings.Index(strings.ToLower(rawText), " at "); i >= 0 {
		crossStreet = strings.TrimSpace(rawText[i+4:])
	} else if i := strings.Index(strings.ToLower(rawText), " near "); i >= 0 {
		crossStreet = strings.TrimSpace(rawText[i+6:])
	}

	ext := models.Extraction{
		Description: strings.TrimSpace(rawText),
		Category:    category,
		CrossStreet: crossStreet,
		Urgency:     int(h % 11),
	}
	return ext, time.Since(start).Milliseconds(), nil
}

type MockSentiment struct{}

func (m MockSentiment) Classify(ctx context.Context, text string) (float64, error) {
	h := utils.HashStringToUint64(text)
	// map to [-1, 1]
	return float64(h%2001)/1000.0 - 1.0, nil
}

// MockEmbedding produces a deterministic pseudo-random unit vector seeded by
// the input text.
type MockEmbedding struct {
	Dim int
}

func (m MockEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := m.Dim
	if dim <= 0 {
		dim = 1536
	}
	seed := utils.HashStringToUint64(text)
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1.0
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}
