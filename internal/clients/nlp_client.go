package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/videoindex/ingestor/internal/ports"
)

// NLPClient extracts lemmatised noun phrases via a remote NLP engine,
// following the same small synchronous-POST shape as EmbeddingClient.
type NLPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNLPClient creates a new NLP client.
func NewNLPClient(baseURL string) (*NLPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("NLP service base URL is required")
	}
	return &NLPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type nounPhraseRequest struct {
	Text string `json:"text"`
}

type nounPhraseResponse struct {
	Phrases []struct {
		Phrase    string `json:"phrase"`
		StartChar int    `json:"start_char"`
		EndChar   int    `json:"end_char"`
		Lemma     string `json:"lemma"`
	} `json:"phrases"`
	Error string `json:"error,omitempty"`
}

// NounPhrases extracts candidate noun phrases from text.
func (c *NLPClient) NounPhrases(ctx context.Context, text string) ([]ports.NounPhrase, error) {
	body, err := json.Marshal(nounPhraseRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal noun phrase request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/noun-phrases", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build noun phrase request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("noun phrase request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read noun phrase response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NLP service returned %d: %s", resp.StatusCode, string(data))
	}

	var out nounPhraseResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse noun phrase response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("NLP service error: %s", out.Error)
	}

	phrases := make([]ports.NounPhrase, 0, len(out.Phrases))
	for _, p := range out.Phrases {
		phrases = append(phrases, ports.NounPhrase{
			Phrase:    p.Phrase,
			StartChar: p.StartChar,
			EndChar:   p.EndChar,
			Lemma:     p.Lemma,
		})
	}
	return phrases, nil
}
