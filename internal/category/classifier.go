// Package category implements C4: mapping a creator's aggregated text
// to one of the 15 closed categories via embedding similarity
// (spec.md §4.4).
package category

import (
	"context"
	"math"
	"sort"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/config"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
)

// Classifier holds pre-computed embeddings for the fixed category set.
type Classifier struct {
	embedder   ports.Embedder
	categories []config.Category
	vectors    map[string][]float32
}

// New computes (and caches) the category descriptor embeddings once.
// Deterministic given fixed inputs and fixed descriptor strings.
func New(ctx context.Context, embedder ports.Embedder, categories []config.Category) (*Classifier, error) {
	vectors := make(map[string][]float32, len(categories))
	for _, c := range categories {
		v, err := embedder.Encode(ctx, c.Descriptor)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "category descriptor embedding failed", err)
		}
		vectors[c.Name] = v
	}
	return &Classifier{embedder: embedder, categories: categories, vectors: vectors}, nil
}

// topicEmbedding pairs a canonical topic with its representative
// embedding and combined score, used to build the creator mean vector.
type topicEmbedding struct {
	canonical string
	score     float64
	embedding []float32
}

// Classify implements spec.md §4.4's procedure: mean of the top-N
// canonical topic embeddings (N default 10), or a mean of a sentence
// sample if none are available.
func (c *Classifier) Classify(ctx context.Context, topN int, aggregates []models.AccountTagAggregate, topicEmbeddings map[string][]float32, fallbackSentences []string) (models.CategoryAssignment, error) {
	if topN <= 0 {
		topN = 10
	}

	var ranked []topicEmbedding
	for _, agg := range aggregates {
		emb, ok := topicEmbeddings[agg.Canonical]
		if !ok {
			continue
		}
		ranked = append(ranked, topicEmbedding{canonical: agg.Canonical, score: agg.CombinedScore, embedding: emb})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	var mean []float32
	switch {
	case len(ranked) > 0:
		vectors := make([][]float32, len(ranked))
		for i, r := range ranked {
			vectors[i] = r.embedding
		}
		mean = meanVector(vectors)
	case len(fallbackSentences) > 0:
		vecs, err := c.embedder.EncodeBatch(ctx, fallbackSentences)
		if err != nil {
			return models.CategoryAssignment{}, apperr.Wrap(apperr.KindEmbeddingMismatch, "fallback sentence embedding failed", err)
		}
		mean = meanVector(vecs)
	default:
		return models.CategoryAssignment{}, apperr.New(apperr.KindInternalError, "no topics or sentences available to classify creator")
	}

	allScores := make(map[string]float64, len(c.categories))
	bestCategory := ""
	bestScore := -2.0
	for _, cat := range c.categories {
		score := cosine(mean, c.vectors[cat.Name])
		allScores[cat.Name] = score
		if score > bestScore {
			bestScore = score
			bestCategory = cat.Name
		}
	}

	return models.CategoryAssignment{
		Category:   bestCategory,
		Confidence: bestScore,
		AllScores:  allScores,
	}, nil
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out
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
