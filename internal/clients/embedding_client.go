package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// EmbeddingClient generates fixed-dimension L2-normalised text
// embeddings via a remote embedding service, modeled on the GraphRAG
// VoyageAI client: a synchronous POST with a short timeout.
type EmbeddingClient struct {
	baseURL    string
	httpClient *http.Client
	dimension  int
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(baseURL string, dimension int) (*EmbeddingClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding service base URL is required")
	}
	return &EmbeddingClient{
		baseURL:    baseURL,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type embeddingRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type embeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	Error      string      `json:"error,omitempty"`
}

// Dimension returns the fixed embedding width D.
func (c *EmbeddingClient) Dimension() int { return c.dimension }

// Encode embeds a single string.
func (c *EmbeddingClient) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding service returned no vectors")
	}
	return vecs[0], nil
}

// EncodeBatch embeds many strings in one round trip.
func (c *EmbeddingClient) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Texts: texts, InputType: "document"})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(data))
	}

	var out embeddingResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", out.Error)
	}

	for i, v := range out.Embeddings {
		out.Embeddings[i] = l2Normalise(v)
	}
	return out.Embeddings, nil
}

func l2Normalise(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
