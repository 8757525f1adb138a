package cluster

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/vecmath"
)

// unit returns an L2-normalized copy of v.
func unit(v ...float32) []float32 {
	out := append([]float32(nil), v...)
	return vecmath.Normalize(out)
}

// partition converts components into a canonical sorted form so two results
// can be compared independent of group ordering and numbering.
func partition(components [][]int) [][]int {
	out := make([][]int, len(components))
	for i, c := range components {
		out[i] = append([]int(nil), c...)
		sort.Ints(out[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func samePartition(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestComponentsBasicGrouping(t *testing.T) {
	vectors := [][]float32{
		unit(1, 0, 0),
		unit(1, 0.01, 0), // near-identical to 0
		unit(0, 1, 0),    // unrelated
		unit(0, 1, 0.01), // near-identical to 2
		unit(0, 0, 1),    // singleton
	}

	components, err := Components(vectors, 0.99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]int{{0, 1}, {2, 3}}
	if !samePartition(partition(components), want) {
		t.Errorf("expected partition %v, got %v", want, partition(components))
	}
}

func TestComponentsSingletonSuppression(t *testing.T) {
	// No pair meets the threshold, so no groups at all.
	vectors := [][]float32{
		unit(1, 0, 0),
		unit(0, 1, 0),
		unit(0, 0, 1),
	}
	components, err := Components(vectors, 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(components) != 0 {
		t.Errorf("expected zero groups, got %d", len(components))
	}
}

func TestComponentsTransitiveMerge(t *testing.T) {
	// A and B are identical; C is close to B but not to A. Union-find must
	// still place all three in one group.
	a := unit(1, 0)
	b := unit(1, 0)
	c := unit(0.9, float32(math.Sqrt(1-0.81)))

	dotAC := vecmath.Dot(a, c)
	dotBC := vecmath.Dot(b, c)
	threshold := float32(0.895)
	if dotBC < threshold || dotAC >= 1.0 {
		t.Fatalf("test setup broken: dot(B,C)=%f dot(A,C)=%f", dotBC, dotAC)
	}

	components, err := Components([][]float32{a, b, c}, threshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(components) != 1 || len(components[0]) != 3 {
		t.Errorf("expected one group of 3, got %v", components)
	}
}

func TestComponentsDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vectors := make([][]float32, 200)
	for i := range vectors {
		v := make([]float32, 8)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = vecmath.Normalize(v)
	}

	first, err := Components(vectors, 0.97)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Components(vectors, 0.97)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !samePartition(partition(first), partition(again)) {
			t.Fatal("repeated clustering produced a different partition")
		}
	}
}

func TestComponentsOrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, 100)
	for i := range vectors {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = vecmath.Normalize(v)
	}

	base, err := Components(vectors, 0.98)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Reverse the input and map member indices back to original positions.
	reversed := make([][]float32, len(vectors))
	for i, v := range vectors {
		reversed[len(vectors)-1-i] = v
	}
	revComponents, err := Components(reversed, 0.98)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range revComponents {
		for i, idx := range c {
			c[i] = len(vectors) - 1 - idx
		}
	}

	if !samePartition(partition(base), partition(revComponents)) {
		t.Error("clustering result changed with input ordering")
	}
}

func TestComponentsSkipsZeroVectors(t *testing.T) {
	vectors := [][]float32{
		unit(1, 0),
		{0, 0}, // unclassifiable, must not edge with anything
		unit(1, 0),
	}
	components, err := Components(vectors, 0.99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]int{{0, 2}}
	if !samePartition(partition(components), want) {
		t.Errorf("expected %v, got %v", want, partition(components))
	}
}

func TestComponentsEntityCap(t *testing.T) {
	vectors := make([][]float32, MaxGroupable+1)
	for i := range vectors {
		vectors[i] = []float32{1}
	}
	_, err := Components(vectors, 0.9)
	if !errors.Is(err, ErrTooManyEntities) {
		t.Errorf("expected ErrTooManyEntities, got %v", err)
	}
}

func TestComponentsEdgeCap(t *testing.T) {
	// 4501 identical vectors produce 4501*4500/2 = 10,127,250 edges, just
	// over the cap.
	n := 4501
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	_, err := Components(vectors, 0.99)
	if !errors.Is(err, ErrTooManyPairs) {
		t.Errorf("expected ErrTooManyPairs, got %v", err)
	}
}

func TestComponentsEmptyInput(t *testing.T) {
	components, err := Components(nil, 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if components != nil {
		t.Errorf("expected nil components, got %v", components)
	}
}

func TestGroupMediaSortsByNewestAndRenumbers(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	items := []database.MediaVector{
		{Summary: database.MediaSummary{UID: "old-a", TakenAt: base}, Vector: unit(1, 0)},
		{Summary: database.MediaSummary{UID: "old-b", TakenAt: base.Add(time.Hour)}, Vector: unit(1, 0)},
		{Summary: database.MediaSummary{UID: "new-a", TakenAt: base.Add(48 * time.Hour)}, Vector: unit(0, 1)},
		{Summary: database.MediaSummary{UID: "new-b", TakenAt: base.Add(72 * time.Hour)}, Vector: unit(0, 1)},
	}

	groups, err := GroupMedia(items, 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	// The group containing the newest member must come first.
	if groups[0].Members[0].UID != "new-a" && groups[0].Members[0].UID != "new-b" {
		t.Errorf("expected newest group first, got %v", groups[0].Members)
	}
	for i, g := range groups {
		if g.ID != i {
			t.Errorf("expected sequential group id %d, got %d", i, g.ID)
		}
	}
}

func TestClusterFacesStableIDs(t *testing.T) {
	faces := []database.StoredFace{
		{ID: 30, MediaUID: "m1", Embedding: unit(1, 0)},
		{ID: 10, MediaUID: "m2", Embedding: unit(1, 0.01)},
		{ID: 20, MediaUID: "m3", Embedding: unit(0, 1)}, // singleton
	}

	groups, assignments, err := ClusterFaces(faces, 0.99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	// Cluster id is the smallest face ID in the component.
	if groups[0].ClusterID != 10 {
		t.Errorf("expected cluster id 10, got %d", groups[0].ClusterID)
	}
	if assignments[30] != 10 || assignments[10] != 10 {
		t.Errorf("unexpected assignments: %v", assignments)
	}
	if _, ok := assignments[20]; ok {
		t.Error("singleton face must not receive an assignment")
	}

	// Same faces in a different order must yield the same cluster id.
	shuffled := []database.StoredFace{faces[2], faces[0], faces[1]}
	groups2, _, err := ClusterFaces(shuffled, 0.99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups2) != 1 || groups2[0].ClusterID != 10 {
		t.Errorf("cluster id changed with input order: %v", groups2)
	}
}
