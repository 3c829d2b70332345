package store

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW graph parameters.
const (
	hnswM        = 16
	hnswEfSearch = 20
	hnswMl       = 0.25
)

// vectorIndex wraps a coder/hnsw graph with string chunk IDs.
//
// The graph does not support node removal, so deletion is lazy: the
// id<->key mappings are dropped and the orphaned node is skipped at
// search time. The graph is rebuilt from the chunks table at open, which
// also compacts away accumulated orphans.
type vectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // chunk ID -> graph key
	keyMap  map[uint64]string // graph key -> chunk ID
	nextKey uint64
}

func newVectorIndex() *vectorIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = hnswMl

	return &vectorIndex{
		graph:  g,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts or replaces the vector for id. The vector is normalized
// in place for cosine distance.
func (v *vectorIndex) Add(id string, vec []float32) {
	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	v.mu.Lock()
	defer v.mu.Unlock()

	if old, ok := v.idMap[id]; ok {
		delete(v.keyMap, old)
	}

	key := v.nextKey
	v.nextKey++
	v.idMap[id] = key
	v.keyMap[key] = id

	node := hnsw.MakeNode(key, normalized)
	v.graph.Add(node)
}

// Remove drops id from the index. The graph node is orphaned until the
// next rebuild.
func (v *vectorIndex) Remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.idMap[id]; ok {
		delete(v.idMap, id)
		delete(v.keyMap, key)
	}
}

// Search returns up to k chunk IDs ordered by ascending cosine distance.
func (v *vectorIndex) Search(query []float32, k int) []*VectorResult {
	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.idMap) == 0 || k <= 0 {
		return nil
	}

	// Over-fetch to compensate for orphaned nodes skipped below.
	nodes := v.graph.Search(normalized, k+len(v.keyMap)/4+1)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			continue
		}
		results = append(results, &VectorResult{
			ChunkID:  id,
			Distance: v.graph.Distance(normalized, node.Value),
		})
		if len(results) == k {
			break
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}

// Len returns the number of live vectors.
func (v *vectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Reset drops all vectors and mappings.
func (v *vectorIndex) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = hnswMl

	v.graph = g
	v.idMap = make(map[string]uint64)
	v.keyMap = make(map[uint64]string)
	v.nextKey = 0
}

func normalizeInPlace(vec []float32) {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

func isZeroVector(vec []float32) bool {
	for _, x := range vec {
		if x != 0 {
			return false
		}
	}
	return true
}
