// Package ports defines the narrow interfaces the core consumes for
// every out-of-scope collaborator listed in spec.md §6.1. Concrete
// implementations live in internal/clients.
package ports

import (
	"context"

	"github.com/videoindex/ingestor/internal/models"
)

// VideoPlatform lists a creator's videos and downloads audio for one.
type VideoPlatform interface {
	ListVideos(ctx context.Context, creator string) ([]models.VideoMeta, error)
	DownloadAudio(ctx context.Context, videoURL, destination string, authCookies string) (audioPath string, err error)
}

// Transcriber turns an audio file into timed text at a given capacity
// tier (spec.md's whisper_mode settings map 1:1 onto tiers).
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, tier models.WhisperMode) (TranscriptionResult, error)
}

// TranscriptionResult is the transcriber port's raw return value.
type TranscriptionResult struct {
	Text       string
	Sentences  []models.Sentence
	Language   string
	Confidence float64
}

// Embedder encodes text into a single fixed-dimension L2-normalised
// vector space for the lifetime of the index.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NounPhrase is one candidate surfaced by the NLP port.
type NounPhrase struct {
	Phrase     string
	StartChar  int
	EndChar    int
	Lemma      string
}

// NLP extracts lemmatised noun phrases from free text.
type NLP interface {
	NounPhrases(ctx context.Context, text string) ([]NounPhrase, error)
}

// ANNIndex is a flat inner-product nearest-neighbour engine. It is a
// pure in-memory scoring accelerator: VectorIndex remains the
// source of truth for persisted vectors/metadata (see internal/vectorindex).
type ANNIndex interface {
	Reset(dimension int)
	Add(vectors [][]float32) (ids []int, err error)
	Search(query []float32, k int) (ids []int, scores []float32, err error)
	Size() int
}
