package search

import (
	"sort"

	"github.com/lodestar-dev/lodestar/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// Boost applied to the dominant retrieval path for a query shape.
const dominantWeight = 1.2

// weights holds the per-path RRF multipliers for one query.
type weights struct {
	Vector float64
	Text   float64
}

// weightsForTermCount boosts the path best suited to the query shape:
// long queries carry enough context for the embedding to shine, one or
// two terms behave like a keyword lookup.
func weightsForTermCount(terms int) weights {
	w := weights{Vector: 1.0, Text: 1.0}
	if terms >= 5 {
		w.Vector = dominantWeight
	}
	if terms >= 1 && terms <= 2 {
		w.Text = dominantWeight
	}
	return w
}

// fusedHit holds intermediate fusion state for one chunk.
type fusedHit struct {
	chunkID   string
	score     float64
	distance  *float32
	matchType string
}

// fuse combines both candidate lists with Reciprocal Rank Fusion. Each
// list contributes weight/(k+rank+1) at its 0-indexed rank; chunks in
// both lists accumulate both contributions and become hybrid matches.
// Output is sorted by descending score with ascending chunk ID as the
// deterministic tie-break.
func fuse(vec []*store.VectorResult, text []*store.TextResult, k int, w weights) []*fusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	hits := make(map[string]*fusedHit, len(vec)+len(text))

	for rank, r := range vec {
		d := r.Distance
		hits[r.ChunkID] = &fusedHit{
			chunkID:   r.ChunkID,
			score:     w.Vector / float64(k+rank+1),
			distance:  &d,
			matchType: MatchSemantic,
		}
	}

	for rank, r := range text {
		contribution := w.Text / float64(k+rank+1)
		if hit, ok := hits[r.ChunkID]; ok {
			hit.score += contribution
			hit.matchType = MatchHybrid
		} else {
			hits[r.ChunkID] = &fusedHit{
				chunkID:   r.ChunkID,
				score:     contribution,
				matchType: MatchKeyword,
			}
		}
	}

	results := make([]*fusedHit, 0, len(hits))
	for _, hit := range hits {
		results = append(results, hit)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})

	return results
}
