package topics

import "github.com/videoindex/ingestor/internal/config"

// Canonicaliser implements the total, deterministic raw -> canonical
// mapping from spec.md §4.3 step 4 / the Canonicalisation entity in §3.
type Canonicaliser struct {
	rules             map[string]string
	autoMergeCosine   float64
	autoMergeEditDist int
}

// NewCanonicaliser builds a Canonicaliser from the loaded merge rules.
func NewCanonicaliser(rules config.CanonicalRules) *Canonicaliser {
	return &Canonicaliser{
		rules:             rules.MergeRules,
		autoMergeCosine:   rules.AutoMergeCosine,
		autoMergeEditDist: rules.AutoMergeEditDistance,
	}
}

// ChosenSet tracks the canonical topics selected so far within one
// video, in insertion order, so the scan in Canonicalise is
// deterministic regardless of Go's randomised map iteration.
type ChosenSet struct {
	order      []string
	embeddings map[string][]float32
}

// NewChosenSet returns an empty, insertion-ordered canonical set.
func NewChosenSet() *ChosenSet {
	return &ChosenSet{embeddings: map[string][]float32{}}
}

func (s *ChosenSet) add(canonical string, embedding []float32) {
	if _, ok := s.embeddings[canonical]; ok {
		return
	}
	s.order = append(s.order, canonical)
	s.embeddings[canonical] = embedding
}

// Canonicalise maps a raw topic to its canonical form: explicit merge
// rules first, then a search of the already-chosen canonical set (in
// insertion order) for cos >= 0.9 OR edit-distance <= 2, otherwise the
// raw becomes a new canonical. chosen accumulates state across calls
// within one video's selection so the mapping stays deterministic for
// a fixed rule set and embedding.
func (c *Canonicaliser) Canonicalise(raw string, embedding []float32, chosen *ChosenSet) string {
	if mapped, ok := c.rules[raw]; ok {
		chosen.add(mapped, embedding)
		return mapped
	}

	for _, canonical := range chosen.order {
		canonEmbedding := chosen.embeddings[canonical]
		if cosine(embedding, canonEmbedding) >= c.autoMergeCosine {
			return canonical
		}
		if editDistance(raw, canonical) <= c.autoMergeEditDist {
			return canonical
		}
	}
	chosen.add(raw, embedding)
	return raw
}

// editDistance is the classic Levenshtein distance.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}

	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}
	return prev[m]
}
