package gallery

import (
	"math"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/vision-assist/internal/facematch"
)

// HNSW graph parameters for 192-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 200
)

// hnswIndex is an approximate nearest-neighbour graph over the snapshot
// entries, keyed by entry position. It is built once and only read afterwards.
type hnswIndex struct {
	graph *hnsw.Graph[int]
	dims  int
}

// buildIndex indexes all entries sharing the dimension of the first one.
// Entries with another dimension can never match a probe of that dimension.
func buildIndex(entries []facematch.Entry) *hnswIndex {
	if len(entries) == 0 {
		return nil
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1 / math.Log(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	dims := len(entries[0].Embedding)
	for i := range entries {
		if len(entries[i].Embedding) != dims {
			continue
		}
		g.Add(hnsw.MakeNode(i, entries[i].Embedding))
	}

	return &hnswIndex{graph: g, dims: dims}
}

// candidates returns the positions of up to k approximate neighbours of
// probe. The second result is false when the index cannot serve the probe.
func (h *hnswIndex) candidates(probe []float32, k int) ([]int, bool) {
	if h == nil || len(probe) != h.dims || h.graph.Len() == 0 {
		return nil, false
	}

	nodes := h.graph.Search(probe, k)
	keys := make([]int, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key
	}
	return keys, true
}
