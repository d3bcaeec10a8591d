package ai

import (
	"context"

	"github.com/civicsense/backend/internal/models"
)

// Extractor turns a raw report transcript into structured ticket fields.
// A result without a street or coordinates is valid, not an error.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (models.Extraction, int64, error)
}

// SentimentClassifier scores a transcript in [-1, 1].
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (float64, error)
}

// EmbeddingProvider produces a fixed-length vector for a piece of text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
