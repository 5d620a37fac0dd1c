package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
)

// TranscriberClient transcribes audio via a remote speech-to-text
// service, selecting a model tier per job (capacity tiers map 1:1 to
// models.WhisperMode), modeled on MageAgentClient.TranscribeAudio.
type TranscriberClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTranscriberClient creates a new transcriber client.
func NewTranscriberClient(baseURL string, timeout time.Duration) *TranscriberClient {
	return &TranscriberClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transcribeRequest struct {
	AudioBase64 string `json:"audio_base64"`
	CapacityTier string `json:"capacity_tier"`
}

type transcribeResponse struct {
	Text       string             `json:"text"`
	Sentences  []models.Sentence  `json:"sentences"`
	Language   string             `json:"language"`
	Confidence float64            `json:"confidence"`
	Error      string             `json:"error,omitempty"`
}

// Transcribe implements ports.Transcriber.
func (c *TranscriberClient) Transcribe(ctx context.Context, audioPath string, tier models.WhisperMode) (ports.TranscriptionResult, error) {
	raw, err := os.ReadFile(audioPath)
	if err != nil {
		return ports.TranscriptionResult{}, fmt.Errorf("read audio file: %w", err)
	}

	if tier == "" {
		tier = models.WhisperBalanced
	}

	body, err := json.Marshal(transcribeRequest{
		AudioBase64:  base64.StdEncoding.EncodeToString(raw),
		CapacityTier: string(tier),
	})
	if err != nil {
		return ports.TranscriptionResult{}, fmt.Errorf("marshal transcribe request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/transcribe", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.TranscriptionResult{}, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.TranscriptionResult{}, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.TranscriptionResult{}, fmt.Errorf("read transcribe response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ports.TranscriptionResult{}, fmt.Errorf("transcriber rate limited: %s", string(data))
	}
	if resp.StatusCode != http.StatusOK {
		return ports.TranscriptionResult{}, fmt.Errorf("transcriber returned %d: %s", resp.StatusCode, string(data))
	}

	var out transcribeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return ports.TranscriptionResult{}, fmt.Errorf("parse transcribe response: %w", err)
	}
	if out.Error != "" {
		return ports.TranscriptionResult{}, fmt.Errorf("transcriber error: %s", out.Error)
	}

	return ports.TranscriptionResult{
		Text:       out.Text,
		Sentences:  out.Sentences,
		Language:   out.Language,
		Confidence: out.Confidence,
	}, nil
}
