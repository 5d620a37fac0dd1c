package topics

import (
	"context"
	"strings"

	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
)

const evidenceSimilarityThreshold = 0.45
const maxEvidence = 5

// findEvidence locates up to 5 supporting sentences for a topic
// phrase by lexical substring or high-similarity match (spec.md §4.3
// step 5). Embedding failures degrade to lexical-only matching rather
// than failing the whole video.
func findEvidence(ctx context.Context, sentences []models.Sentence, phrase string, embedder ports.Embedder) []models.Evidence {
	var phraseEmbedding []float32
	if embedder != nil {
		if v, err := embedder.Encode(ctx, phrase); err == nil {
			phraseEmbedding = v
		}
	}

	lower := strings.ToLower(phrase)
	var evidence []models.Evidence
	for _, s := range sentences {
		if len(evidence) >= maxEvidence {
			break
		}

		matched := strings.Contains(strings.ToLower(s.Text), lower)
		if !matched && phraseEmbedding != nil && embedder != nil {
			if sentenceEmb, err := embedder.Encode(ctx, s.Text); err == nil {
				matched = cosine(phraseEmbedding, sentenceEmb) >= evidenceSimilarityThreshold
			}
		}
		if !matched {
			continue
		}

		evidence = append(evidence, models.Evidence{
			SentenceIndex: s.Index,
			StartSec:      s.StartSec,
			EndSec:        s.EndSec,
			Text:          s.Text,
		})
	}

	// Invariant (spec.md §3): every TopicRecord carries >= 1 Evidence.
	// A normalised phrase can fail exact/embedding match against the
	// raw sentence text (punctuation, contractions); fall back to the
	// sentence with the most shared words so the invariant still holds.
	if len(evidence) == 0 && len(sentences) > 0 {
		best := bestWordOverlap(sentences, phrase)
		evidence = append(evidence, models.Evidence{
			SentenceIndex: best.Index,
			StartSec:      best.StartSec,
			EndSec:        best.EndSec,
			Text:          best.Text,
		})
	}
	return evidence
}

func bestWordOverlap(sentences []models.Sentence, phrase string) models.Sentence {
	words := strings.Fields(strings.ToLower(phrase))
	wantSet := map[string]struct{}{}
	for _, w := range words {
		wantSet[w] = struct{}{}
	}

	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := 0
		for _, w := range strings.Fields(strings.ToLower(s.Text)) {
			if _, ok := wantSet[w]; ok {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return sentences[bestIdx]
}
