// Package topics implements C3, the hardest subcomponent: candidate
// extraction, MMR selection, canonicalisation, evidence attachment and
// confidence scoring (spec.md §4.3), plus account-level aggregation.
package topics

import (
	"context"
	"math"
	"strings"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/ports"
)

// Extractor runs the per-video topic pipeline over one transcript.
type Extractor struct {
	embedder    ports.Embedder
	nlp         ports.NLP
	stopPhrases map[string]struct{}
	canon       *Canonicaliser
	topK        int
	mmrLambda   float64
}

// Config bundles the tunables from spec.md §6.4.
type Config struct {
	TopK      int
	MMRLambda float64
}

// New builds an Extractor. It fails fast if nlp is nil, per spec.md
// §4.3's "if the NLP port is unavailable at startup, the entire
// component fails fast."
func New(embedder ports.Embedder, nlp ports.NLP, stopPhrases map[string]struct{}, canon *Canonicaliser, cfg Config) (*Extractor, error) {
	if nlp == nil {
		return nil, apperr.New(apperr.KindInternalError, "NLP port is required for topic extraction")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MMRLambda == 0 {
		cfg.MMRLambda = 0.7
	}
	return &Extractor{
		embedder:    embedder,
		nlp:         nlp,
		stopPhrases: stopPhrases,
		canon:       canon,
		topK:        cfg.TopK,
		mmrLambda:   cfg.MMRLambda,
	}, nil
}

// candidate is one surviving noun phrase carried through the pipeline.
type candidate struct {
	phrase    string
	embedding []float32
}

// Extract runs the full per-video procedure from spec.md §4.3 steps 1-7.
// A single video's extraction failure must not fail the account: the
// caller is expected to log the returned error and continue with the
// remaining videos (spec.md §4.3 failure semantics).
func (e *Extractor) Extract(ctx context.Context, artifact models.TranscriptArtifact) ([]models.TopicRecord, error) {
	// Step 1: candidate extraction.
	phrases, err := e.nlp.NounPhrases(ctx, artifact.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternalError, "noun phrase extraction failed", err)
	}

	seen := map[string]struct{}{}
	var surface []string
	for _, p := range phrases {
		norm := normalisePhrase(p.Phrase)
		if !isCandidate(norm) {
			continue
		}
		if _, stop := e.stopPhrases[norm]; stop {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		surface = append(surface, norm)
	}
	if len(surface) == 0 {
		return nil, nil
	}

	// Step 2: embedding. One embedding per unique candidate, plus the
	// whole transcript, using a single fixed model.
	docEmbedding, err := e.embedder.Encode(ctx, artifact.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "document embedding failed", err)
	}
	phraseEmbeddings, err := e.embedder.EncodeBatch(ctx, surface)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingMismatch, "candidate embedding failed", err)
	}
	if len(phraseEmbeddings) != len(surface) {
		return nil, apperr.New(apperr.KindEmbeddingMismatch, "candidate embedding count mismatch")
	}

	candidates := make([]candidate, len(surface))
	for i, s := range surface {
		candidates[i] = candidate{phrase: s, embedding: phraseEmbeddings[i]}
	}

	// Step 3: MMR selection.
	selected := selectMMR(candidates, docEmbedding, e.topK, e.mmrLambda)

	// Step 4: canonicalisation.
	canonByRaw := map[string]string{}
	chosen := NewChosenSet()
	for _, s := range selected {
		canonical := e.canon.Canonicalise(s.candidate.phrase, s.candidate.embedding, chosen)
		canonByRaw[s.candidate.phrase] = canonical
	}

	// Step 5 + 6: evidence and confidence.
	records := make([]models.TopicRecord, 0, len(selected))
	for _, s := range selected {
		evidence := findEvidence(ctx, artifact.Sentences, s.candidate.phrase, e.embedder)
		norm := clip((s.mmr+0.5)/1.2, 0, 1)
		boost := minF(0.3, math.Log(1+float64(len(evidence)))/10)
		confidence := minF(1, norm+boost)

		records = append(records, models.TopicRecord{
			Tag:        s.candidate.phrase,
			Canonical:  canonByRaw[s.candidate.phrase],
			ScoreMMR:   s.mmr,
			Confidence: confidence,
			Evidence:   evidence,
			Source:     models.TopicSourceTranscript,
			Stats: models.TopicStats{
				DistinctSentences: distinctSentences(evidence),
				MMRScore:          s.mmr,
			},
		})
	}
	return records, nil
}

func normalisePhrase(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	var b strings.Builder
	for _, r := range p {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' {
			b.WriteRune(r)
		} else if r == '\'' {
			continue
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isCandidate keeps phrases of length >= 4 chars with >= 1 token of
// length > 3, per spec.md §4.3 step 1.
func isCandidate(norm string) bool {
	if len(norm) < 4 {
		return false
	}
	for _, tok := range strings.Fields(norm) {
		if len(tok) > 3 {
			return true
		}
	}
	return false
}

func distinctSentences(evidence []models.Evidence) int {
	set := map[int]struct{}{}
	for _, e := range evidence {
		set[e.SentenceIndex] = struct{}{}
	}
	return len(set)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
