// Package umbrella implements C5 UmbrellaBuilder: clustering an
// account's canonical topics into a small number of labelled umbrella
// categories (spec.md §4.5).
package umbrella

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/videoindex/ingestor/internal/graph"
	"github.com/videoindex/ingestor/internal/models"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultMinClusterSize      = 2
	defaultMaxUmbrellas        = 5
)

// labelStopWords holds generic English stopwords plus a small set of
// creator-video meta-words that carry no topical signal of their own
// (spec.md §4.5 step 4's labelling procedure: words are dropped before
// coverage scoring so a cluster never gets labelled "Video" or "The").
var labelStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "in": {}, "on": {},
	"to": {}, "for": {}, "with": {}, "this": {}, "that": {}, "is": {},
	"are": {}, "from": {}, "by": {}, "at": {}, "as": {}, "it": {}, "its": {},
	"be": {}, "or": {}, "your": {}, "you": {}, "my": {}, "our": {}, "about": {},

	"video": {}, "videos": {}, "thank": {}, "thanks": {}, "watching": {},
	"watch": {}, "subscribe": {}, "like": {}, "comment": {}, "channel": {},
	"episode": {}, "part": {}, "today": {}, "guys": {}, "hey": {}, "hi": {},
}

// Config bundles the tunables from spec.md §6.4.
type Config struct {
	SimilarityThreshold float64
	MinClusterSize      int
	MaxUmbrellas        int
}

// Builder clusters canonical topics into umbrellas.
type Builder struct {
	cfg Config
}

// New returns a Builder, filling in defaults for zero-valued fields.
func New(cfg Config) *Builder {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = defaultSimilarityThreshold
	}
	if cfg.MinClusterSize == 0 {
		cfg.MinClusterSize = defaultMinClusterSize
	}
	if cfg.MaxUmbrellas == 0 {
		cfg.MaxUmbrellas = defaultMaxUmbrellas
	}
	return &Builder{cfg: cfg}
}

// Topic is one canonical topic with its representative embedding and
// account-level stats, the input unit to Build.
type Topic struct {
	Canonical string
	Embedding []float32
	Frequency int
	VideoIDs  []models.VideoId
}

// Build runs the full §4.5 procedure: similarity graph, community
// detection, coherence filtering, labelling, ranking and capping.
func (b *Builder) Build(topics []Topic) models.UmbrellaFile {
	// Stable order: the caller's topics slice already has a fixed order
	// (callers sort by CombinedScore/Canonical before calling); node ids
	// below are simply indices into it, so clustering is deterministic
	// for a fixed input slice.
	n := len(topics)
	g := graph.New(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := cosine(topics[i].Embedding, topics[j].Embedding)
			if sim >= b.cfg.SimilarityThreshold {
				g.AddEdge(i, j, sim)
			}
		}
	}

	communities := graph.Communities(g)

	var clusters []models.UmbrellaCluster
	for _, members := range communities {
		if len(members) < b.cfg.MinClusterSize {
			continue
		}

		coherence := meanPairwiseCosine(topics, members)
		var names []string
		var videoSet = map[models.VideoId]struct{}{}
		var videoIDs []models.VideoId
		totalFreq := 0
		for _, idx := range members {
			t := topics[idx]
			names = append(names, t.Canonical)
			totalFreq += t.Frequency
			for _, v := range t.VideoIDs {
				if _, ok := videoSet[v]; !ok {
					videoSet[v] = struct{}{}
					videoIDs = append(videoIDs, v)
				}
			}
		}
		sort.Strings(names)

		memberNames := make([]string, len(members))
		for i, idx := range members {
			memberNames[i] = topics[idx].Canonical
		}

		base := label(names)
		clusters = append(clusters, models.UmbrellaCluster{
			ID:             base,
			Label:          titleCase(base),
			Members:        memberNames,
			MemberCount:    len(members),
			TotalFrequency: totalFreq,
			AvgCoherence:   coherence,
			VideoIDs:       videoIDs,
		})
	}

	seenID := map[string]int{}
	for i := range clusters {
		base := clusters[i].ID
		seenID[base]++
		if seenID[base] > 1 {
			clusters[i].ID = base + "-" + strconv.Itoa(seenID[base])
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].MemberCount != clusters[j].MemberCount {
			return clusters[i].MemberCount > clusters[j].MemberCount
		}
		return clusters[i].ID < clusters[j].ID
	})
	if len(clusters) > b.cfg.MaxUmbrellas {
		clusters = clusters[:b.cfg.MaxUmbrellas]
	}

	return models.UmbrellaFile{
		Umbrellas: clusters,
		Threshold: b.cfg.SimilarityThreshold,
		Method:    "louvain",
	}
}

func meanPairwiseCosine(topics []Topic, members []int) float64 {
	if len(members) < 2 {
		return 1
	}
	var sum float64
	var count int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += cosine(topics[members[i]].Embedding, topics[members[j]].Embedding)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// label produces a short, deterministic cluster identifier by
// word-coverage: canonicals are decomposed into words, stopwords and
// meta-words are dropped, and the single remaining word that appears
// across the most member canonicals wins outright if its coverage is
// >= 0.30; otherwise the two highest-coverage words with overlap < 0.5
// combine ("word1 word2").
func label(canonicals []string) string {
	wordCount := map[string]int{}
	wordOrder := []string{}
	for _, c := range canonicals {
		seen := map[string]struct{}{}
		for _, w := range strings.Fields(strings.ToLower(c)) {
			if _, stop := labelStopWords[w]; stop {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			if _, ok := wordCount[w]; !ok {
				wordOrder = append(wordOrder, w)
			}
			wordCount[w]++
		}
	}
	if len(wordOrder) == 0 {
		return "misc"
	}

	sort.SliceStable(wordOrder, func(i, j int) bool {
		if wordCount[wordOrder[i]] != wordCount[wordOrder[j]] {
			return wordCount[wordOrder[i]] > wordCount[wordOrder[j]]
		}
		return wordOrder[i] < wordOrder[j]
	})

	top := wordOrder[0]
	coverage := float64(wordCount[top]) / float64(len(canonicals))
	if coverage >= 0.30 || len(wordOrder) == 1 {
		return top
	}

	for _, candidate := range wordOrder[1:] {
		overlap := wordOverlapRatio(top, candidate, canonicals)
		if overlap < 0.5 {
			return top + " " + candidate
		}
	}
	return top
}

// wordOverlapRatio measures how often two words co-occur in the same
// canonical relative to how often either appears, used to avoid
// picking a redundant second label word.
func wordOverlapRatio(a, b string, canonicals []string) float64 {
	var both, either int
	for _, c := range canonicals {
		hasA := strings.Contains(c, a)
		hasB := strings.Contains(c, b)
		if hasA && hasB {
			both++
		}
		if hasA || hasB {
			either++
		}
	}
	if either == 0 {
		return 0
	}
	return float64(both) / float64(either)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
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
