package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPEmbedding calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPEmbedding struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

func (h HTTPEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 20 * time.Second}
	}

	payload := map[string]any{
		"model": h.Model,
		"input": []string{text},
	}
	b, _ := json.Marshal(payload)

	url := strings.TrimRight(h.BaseURL, "/") + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(h.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding http error: %s", resp.Status)
	}

	var r struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	if len(r.Data) == 0 || len(r.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return r.Data[0].Embedding, nil
}
