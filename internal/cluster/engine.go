// Package cluster groups entities by embedding similarity: connected
// components of the graph whose edges join pairs with a dot product at or
// above a threshold. The same engine serves whole-media duplicate grouping
// and face/person clustering; only the post-processing differs.
package cluster

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mbartos/photon/internal/vecmath"
)

const (
	// MaxGroupable is the hard cap on the number of entities per clustering
	// pass. It bounds the O(N^2) pairwise comparison.
	MaxGroupable = 20000

	// MaxEdges is the cap on discovered similar pairs per pass. It guards
	// against memory blow-up on pathologically similar datasets.
	MaxEdges = 10_000_000
)

// ErrTooManyEntities is returned when a pass is asked to cluster more than
// MaxGroupable entities. Recoverable: retry with a smaller scope.
var ErrTooManyEntities = errors.New("too many entities to cluster")

// ErrTooManyPairs is returned when the similarity graph exceeds MaxEdges.
// Recoverable: retry with a stricter threshold.
var ErrTooManyPairs = errors.New("too many similar pairs")

type edge struct {
	i, j int32
}

// Components computes the connected components of the similarity graph over
// the given vectors, where an edge joins i and j iff dot(v_i, v_j) >= minDot.
// Vectors must be unit length; zero vectors are skipped entirely. The
// returned slices hold member indices into the input; components with fewer
// than two members are dropped.
//
// minDot is a raw minimum cosine similarity in [-1, 1]. Callers working in
// cosine-distance terms convert with minDot = 1 - maxDistance before calling.
func Components(vectors [][]float32, minDot float32) ([][]int, error) {
	n := len(vectors)
	if n > MaxGroupable {
		return nil, fmt.Errorf("%w: %d entities exceeds limit of %d", ErrTooManyEntities, n, MaxGroupable)
	}
	if n == 0 {
		return nil, nil
	}

	dim := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil, nil
	}

	// Pack valid vectors into one contiguous row-major buffer for cache
	// locality during the all-pairs scan.
	buf := make([]float32, n*dim)
	valid := make([]bool, n)
	for i, v := range vectors {
		if len(v) != dim || vecmath.IsZero(v) {
			continue
		}
		valid[i] = true
		copy(buf[i*dim:(i+1)*dim], v)
	}

	edges, err := discoverEdges(buf, valid, n, dim, minDot)
	if err != nil {
		return nil, err
	}

	uf := newUnionFind(n)
	for _, e := range edges {
		uf.union(e.i, e.j)
	}

	return collectComponents(uf, valid, n), nil
}

// discoverEdges fans the row index out over parallel workers. Each worker
// scans j > i with a straight-line dot product loop. A shared atomic counter
// enforces MaxEdges across all workers.
func discoverEdges(buf []float32, valid []bool, n, dim int, minDot float32) ([]edge, error) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	var (
		g         errgroup.Group
		nextRow   atomic.Int64
		edgeCount atomic.Int64
		overflow  atomic.Bool
		mu        sync.Mutex
	)
	edges := make([]edge, 0, 1024)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := make([]edge, 0, 256)
			for {
				i := int(nextRow.Add(1)) - 1
				if i >= n {
					break
				}
				if overflow.Load() {
					return fmt.Errorf("%w: edge count exceeds limit of %d", ErrTooManyPairs, MaxEdges)
				}
				if !valid[i] {
					continue
				}
				row := buf[i*dim : (i+1)*dim]
				for j := i + 1; j < n; j++ {
					if !valid[j] {
						continue
					}
					other := buf[j*dim : (j+1)*dim]
					var dot float32
					for k := 0; k < dim; k++ {
						dot += row[k] * other[k]
					}
					if dot >= minDot {
						if edgeCount.Add(1) > MaxEdges {
							overflow.Store(true)
							return fmt.Errorf("%w: edge count exceeds limit of %d", ErrTooManyPairs, MaxEdges)
						}
						local = append(local, edge{i: int32(i), j: int32(j)})
					}
				}
			}
			mu.Lock()
			edges = append(edges, local...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return edges, nil
}

// collectComponents groups indices by union-find root and drops singletons.
func collectComponents(uf *unionFind, valid []bool, n int) [][]int {
	byRoot := make(map[int32][]int)
	for i := 0; i < n; i++ {
		if !valid[i] {
			continue
		}
		root := uf.find(int32(i))
		byRoot[root] = append(byRoot[root], i)
	}

	var components [][]int
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		components = append(components, members)
	}
	return components
}
