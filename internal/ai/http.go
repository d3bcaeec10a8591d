package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/civicsense/backend/internal/models"
)

type HTTPExtractor struct {
	BaseURL string
	Client  *http.Client
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	CrossStreet string   `json:"cross_street"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Urgency     int      `json:"urgency"`
}

func (h HTTPExtractor) Extract(ctx context.Context, rawText string) (models.Extraction, int64, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 15 * time.Second}
	}

	b, _ := json.Marshal(extractRequest{Text: rawText})
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/extract", bytes.NewBuffer(b))
	if err != nil {
		return models.Extraction{}, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return models.Extraction{}, time.Since(start).Milliseconds(), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Extraction{}, time.Since(start).Milliseconds(), errors.New("extractor service error")
	}

	var r extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.Extraction{}, time.Since(start).Milliseconds(), err
	}
	if r.Description == "" {
		return models.Extraction{}, time.Since(start).Milliseconds(), errors.New("extractor returned no description")
	}

	ext := models.Extraction{
		Description: r.Description,
		Category:    r.Category,
		CrossStreet: r.CrossStreet,
		Lat:         r.Lat,
		Lon:         r.Lon,
		Urgency:     r.Urgency,
	}
	return ext, time.Since(start).Milliseconds(), nil
}

type HTTPSentiment struct {
	BaseURL string
	Client  *http.Client
}

func (h HTTPSentiment) Classify(ctx context.Context, text string) (float64, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}

	b, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/sentiment", bytes.NewBuffer(b))
	if err != nil {
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.New("sentiment service error")
	}

	var r struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, err
	}
	if r.Score < -1 || r.Score > 1 {
		return 0, errors.New("sentiment score out of range")
	}
	return r.Score, nil
}
