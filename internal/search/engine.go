// Package search implements C7 SearchEngine: transcript indexing,
// semantic search with filtering/sorting/snippets, and transcript
// highlighting (spec.md §4.7).
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
	"github.com/videoindex/ingestor/internal/vectorindex"
)

const (
	minSegmentSentences = 1
	maxSegmentSentences  = 3
	defaultSearchK       = 200
)

// VideoMetadata is the per-video context search needs for filtering
// that the vector index itself doesn't carry: uploaded date, category
// and tags. The caller (internal/httpapi) supplies a lookup backed by
// AccountIndex + the category and per-video topic artifacts.
type VideoMetadata struct {
	UploadedAt time.Time
	Category   string
	Tags       []string
}

// MetadataLookup resolves a {creator,video_id} to its VideoMetadata.
// Returns ok=false if unknown (e.g. not yet classified).
type MetadataLookup func(creator, videoID string) (VideoMetadata, bool)

// Engine ties the embedder port and the durable vector index together.
type Engine struct {
	embedder           ports.Embedder
	index              *vectorindex.Index
	minSearchScore     float64
	highlightThreshold float64
}

// Config bundles the tunables from spec.md §6.4.
type Config struct {
	MinSearchScore     float64
	HighlightThreshold float64
}

// New builds an Engine over an already-open vector index.
func New(embedder ports.Embedder, index *vectorindex.Index, cfg Config) *Engine {
	if cfg.MinSearchScore == 0 {
		cfg.MinSearchScore = 0.15
	}
	if cfg.HighlightThreshold == 0 {
		cfg.HighlightThreshold = 0.30
	}
	return &Engine{embedder: embedder, index: index, minSearchScore: cfg.MinSearchScore, highlightThreshold: cfg.HighlightThreshold}
}

// IndexTranscript chunks a transcript into 1-3 sentence segments,
// embeds each, and appends them to the vector index. It is idempotent:
// re-indexing an already-indexed video is a no-op (spec.md §4.7 step 1
// / §4.8 de-dup by {creator,video_id}).
func (e *Engine) IndexTranscript(ctx context.Context, artifact models.TranscriptArtifact) (int, error) {
	if e.index.IsIndexed(artifact.Creator, artifact.VideoID) {
		return 0, nil
	}

	segments, err := e.BuildSegments(ctx, artifact)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, nil
	}

	ids, err := e.index.Append(artifact.Creator, artifact.VideoID, segments)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// BuildSegments chunks and embeds a transcript into IndexSegment rows
// without touching the durable index, for rebuild_from_transcripts
// (spec.md §4.6) to reuse the same chunking/embedding logic
// IndexTranscript uses for a fresh ingest.
func (e *Engine) BuildSegments(ctx context.Context, artifact models.TranscriptArtifact) ([]models.IndexSegment, error) {
	if len(artifact.Sentences) == 0 {
		return nil, nil
	}

	chunks := chunkSentences(artifact.Sentences, maxSegmentSentences)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.text
	}

	embeddings, err := e.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "segment embedding failed", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, apperr.New(apperr.KindEmbeddingMismatch, "segment embedding count mismatch")
	}

	now := time.Now()
	segments := make([]models.IndexSegment, len(chunks))
	for i, c := range chunks {
		segments[i] = models.IndexSegment{
			Creator:    artifact.Creator,
			VideoID:    artifact.VideoID,
			StartSec:   c.startSec,
			EndSec:     c.endSec,
			Text:       c.text,
			IngestedAt: now,
			Embedding:  embeddings[i],
		}
	}
	return segments, nil
}

type sentenceChunk struct {
	text     string
	startSec float64
	endSec   float64
}

// chunkSentences groups consecutive sentences into windows of 1..max
// sentences, preferring max and only trimming for the final remainder.
func chunkSentences(sentences []models.Sentence, max int) []sentenceChunk {
	var chunks []sentenceChunk
	for i := 0; i < len(sentences); i += max {
		end := i + max
		if end > len(sentences) {
			end = len(sentences)
		}
		group := sentences[i:end]
		var b strings.Builder
		for j, s := range group {
			if j > 0 {
				b.WriteString(" ")
			}
			b.WriteString(s.Text)
		}
		chunks = append(chunks, sentenceChunk{
			text:     b.String(),
			startSec: group[0].StartSec,
			endSec:   group[len(group)-1].EndSec,
		})
	}
	return chunks
}

// Request is the resolved search call, after the HTTP layer has
// validated a models.SearchRequest.
type Request struct {
	Query   string
	TopK    int
	Filters models.SearchFilters
	Sort    models.SearchSort
}

// Search embeds the query, runs an over-fetching ANN search, applies
// filters, sorts, and synthesizes snippets (spec.md §4.7 step 2).
func (e *Engine) Search(ctx context.Context, req Request, lookup MetadataLookup) ([]models.SearchResult, error) {
	if req.TopK <= 0 {
		req.TopK = 10
	}
	k := req.TopK * 4
	if k < defaultSearchK {
		k = defaultSearchK
	}

	queryEmbedding, err := e.embedder.Encode(ctx, req.Query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "query embedding failed", err)
	}

	segments, scores, err := e.index.Search(queryEmbedding, k)
	if err != nil {
		return nil, err
	}

	minScore := e.minSearchScore
	if req.Filters.MinScore > 0 {
		minScore = req.Filters.MinScore
	}

	include := toSet(req.Filters.IncludeCreators)
	exclude := toSet(req.Filters.ExcludeCreators)
	requiredTags := req.Filters.RequiredTags

	results := make([]models.SearchResult, 0, len(segments))
	for i, seg := range segments {
		score := float64(scores[i])
		if score < minScore {
			continue
		}
		if len(include) > 0 {
			if _, ok := include[seg.Creator]; !ok {
				continue
			}
		}
		if _, ok := exclude[seg.Creator]; ok {
			continue
		}

		var meta VideoMetadata
		var haveMeta bool
		if lookup != nil {
			meta, haveMeta = lookup(seg.Creator, seg.VideoID)
		}

		if req.Filters.Category != "" {
			if !haveMeta || meta.Category != req.Filters.Category {
				continue
			}
		}
		if len(requiredTags) > 0 {
			if !haveMeta || !hasAllTags(meta.Tags, requiredTags) {
				continue
			}
		}
		if req.Filters.DateFrom != nil {
			if !haveMeta || meta.UploadedAt.Before(*req.Filters.DateFrom) {
				continue
			}
		}
		if req.Filters.DateTo != nil {
			if !haveMeta || meta.UploadedAt.After(*req.Filters.DateTo) {
				continue
			}
		}

		results = append(results, models.SearchResult{
			Creator:    seg.Creator,
			VideoID:    seg.VideoID,
			Score:      score,
			StartSec:   seg.StartSec,
			EndSec:     seg.EndSec,
			Timestamp:  formatTimestamp(seg.StartSec),
			Snippet:    synthesizeSnippet(seg.Text),
			IngestedAt: seg.IngestedAt,
		})
	}

	sortResults(results, req.Sort, lookup)

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func hasAllTags(tags []string, required []string) bool {
	set := toSet(tags)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func sortResults(results []models.SearchResult, sortBy models.SearchSort, lookup MetadataLookup) {
	switch sortBy {
	case models.SortRecency:
		sort.SliceStable(results, func(i, j int) bool {
			var ti, tj time.Time
			if lookup != nil {
				if m, ok := lookup(results[i].Creator, results[i].VideoID); ok {
					ti = m.UploadedAt
				}
				if m, ok := lookup(results[j].Creator, results[j].VideoID); ok {
					tj = m.UploadedAt
				}
			}
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return results[i].Score > results[j].Score
		})
	case models.SortTimestamp:
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Creator != results[j].Creator {
				return results[i].Creator < results[j].Creator
			}
			if results[i].VideoID != results[j].VideoID {
				return results[i].VideoID < results[j].VideoID
			}
			return results[i].StartSec < results[j].StartSec
		})
	default: // relevance
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
}

// synthesizeSnippet trims a segment's text to a readable 2-3 sentence
// preview. Segments are already capped at 3 sentences by chunking, so
// this only needs to guard overly long single sentences.
func synthesizeSnippet(text string) string {
	const maxChars = 280
	if len(text) <= maxChars {
		return text
	}
	cut := strings.LastIndexAny(text[:maxChars], " ")
	if cut <= 0 {
		cut = maxChars
	}
	return text[:cut] + "..."
}

// formatTimestamp renders seconds as MM:SS (or H:MM:SS past an hour).
func formatTimestamp(seconds float64) string {
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Highlight marks which sentences of a transcript are semantically
// close to the query (spec.md §4.7 step 3): cos(query, sentence) >=
// highlight_threshold.
func (e *Engine) Highlight(ctx context.Context, query string, sentences []models.Sentence) ([]bool, error) {
	queryEmbedding, err := e.embedder.Encode(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "highlight query embedding failed", err)
	}
	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}
	embeddings, err := e.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "highlight sentence embedding failed", err)
	}

	highlighted := make([]bool, len(sentences))
	for i, emb := range embeddings {
		highlighted[i] = cosine(queryEmbedding, emb) >= e.highlightThreshold
	}
	return highlighted, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
