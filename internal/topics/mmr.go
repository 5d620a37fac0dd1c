package topics

import "math"

type mmrSelection struct {
	candidate candidate
	mmr       float64
}

// selectMMR picks at most topK candidates by iterative maximisation of
// mmr(c) = lambda*cos(c, doc) - (1-lambda)*max_{s in selected} cos(c, s),
// per spec.md §4.3 step 3. Ties break on higher relevance, then stable
// insertion order.
func selectMMR(candidates []candidate, doc []float32, topK int, lambda float64) []mmrSelection {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = cosine(c.embedding, doc)
	}

	chosen := make([]int, 0, topK)
	result := make([]mmrSelection, 0, topK)
	remaining := make(map[int]struct{}, len(candidates))
	for i := range candidates {
		remaining[i] = struct{}{}
	}

	for len(chosen) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		bestRelevance := math.Inf(-1)

		for i := range candidates {
			if _, ok := remaining[i]; !ok {
				continue
			}
			maxSim := 0.0
			for k, j := range chosen {
				sim := cosine(candidates[i].embedding, candidates[j].embedding)
				if k == 0 || sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim

			better := score > bestScore
			tie := score == bestScore
			if better || (tie && relevance[i] > bestRelevance) {
				bestIdx = i
				bestScore = score
				bestRelevance = relevance[i]
			}
		}

		if bestIdx == -1 {
			break
		}
		chosen = append(chosen, bestIdx)
		delete(remaining, bestIdx)
		result = append(result, mmrSelection{candidate: candidates[bestIdx], mmr: bestScore})
	}
	return result
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
