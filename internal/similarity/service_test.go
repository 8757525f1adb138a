package similarity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/database/mock"
)

type fakeEmbedder struct {
	imageVec []float32
	textVec  []float32
	err      error
}

func (f *fakeEmbedder) ExtractImage(ctx context.Context, imageData []byte) ([]float32, error) {
	return f.imageVec, f.err
}

func (f *fakeEmbedder) ExtractText(ctx context.Context, text string) ([]float32, error) {
	return f.textVec, f.err
}

func seededStore() *mock.Store {
	store := mock.NewStore()
	store.AddEmbedding(database.Media{UID: "a"}, []float32{1, 0, 0})
	store.AddEmbedding(database.Media{UID: "b"}, []float32{0.99, 0.14, 0})
	store.AddEmbedding(database.Media{UID: "c"}, []float32{0, 1, 0})
	store.AddEmbedding(database.Media{UID: "d"}, []float32{-1, 0, 0})
	return store
}

func TestPercentToDistance(t *testing.T) {
	tests := []struct {
		percent float64
		want    float64
	}{
		{100, 0},
		{50, 1},
		{0, 2},
		{150, 0},  // clamped
		{-50, 2},  // clamped
		{75, 0.5},
	}
	for _, tt := range tests {
		if got := PercentToDistance(tt.percent); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PercentToDistance(%f) = %f, want %f", tt.percent, got, tt.want)
		}
	}
}

func TestNearestOrdersByDistance(t *testing.T) {
	svc := New(seededStore(), nil, nil)

	results, err := svc.Nearest(context.Background(), []float32{1, 0, 0}, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].MediaUID != "a" || results[0].Distance > 1e-6 {
		t.Errorf("expected 'a' first at distance 0, got %+v", results[0])
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Error("results not ordered ascending by distance")
		}
	}
}

func TestNearestRespectsMaxDistance(t *testing.T) {
	svc := New(seededStore(), nil, nil)

	results, err := svc.Nearest(context.Background(), []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Distance > 0.5 {
			t.Errorf("result %s exceeds max distance: %f", r.MediaUID, r.Distance)
		}
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results within 0.5, got %d", len(results))
	}
}

func TestNearestZeroVectorMatchesNothing(t *testing.T) {
	svc := New(seededStore(), nil, nil)
	results, err := svc.Nearest(context.Background(), []float32{0, 0, 0}, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("zero query vector should match nothing, got %v", results)
	}
}

func TestSearchByIDExcludesSelf(t *testing.T) {
	svc := New(seededStore(), nil, nil)

	// 0% similarity = distance 2 = everything; "a" itself must still never
	// appear.
	results, err := svc.SearchByID(context.Background(), "a", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.MediaUID == "a" {
			t.Error("search by id must not return the source item")
		}
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestSearchByIDTruncatesToLimit(t *testing.T) {
	svc := New(seededStore(), nil, nil)
	results, err := svc.SearchByID(context.Background(), "a", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected exactly 2 results, got %d", len(results))
	}
}

func TestSearchByIDNotFound(t *testing.T) {
	svc := New(seededStore(), nil, nil)
	_, err := svc.SearchByID(context.Background(), "missing", 5, 50)
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchByImage(t *testing.T) {
	embedder := &fakeEmbedder{imageVec: []float32{2, 0, 0}} // normalized before query
	svc := New(seededStore(), embedder, nil)

	results, err := svc.SearchByImage(context.Background(), []byte("jpeg"), 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].MediaUID != "a" {
		t.Errorf("expected 'a', got %v", results)
	}
}

func TestSearchByImageExtractionError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("model crashed")}
	svc := New(seededStore(), embedder, nil)
	if _, err := svc.SearchByImage(context.Background(), []byte("jpeg"), 1, 0.5); err == nil {
		t.Error("expected extraction error to propagate")
	}
}

func TestSearchByTextUsesTranslator(t *testing.T) {
	embedder := &fakeEmbedder{textVec: []float32{0, 1, 0}}
	var gotQuery string
	translator := func(ctx context.Context, q string) (string, error) {
		gotQuery = q
		return "a dog on a beach", nil
	}
	svc := New(seededStore(), embedder, translator)

	results, err := svc.SearchByText(context.Background(), "pes na plazi", 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "pes na plazi" {
		t.Errorf("translator received %q", gotQuery)
	}
	if len(results) != 1 || results[0].MediaUID != "c" {
		t.Errorf("expected 'c', got %v", results)
	}
}

func TestSearchByTextTranslatorFailureFallsBack(t *testing.T) {
	embedder := &fakeEmbedder{textVec: []float32{0, 1, 0}}
	translator := func(ctx context.Context, q string) (string, error) {
		return "", errors.New("api down")
	}
	svc := New(seededStore(), embedder, translator)

	if _, err := svc.SearchByText(context.Background(), "query", 1, 0.5); err != nil {
		t.Errorf("translation failure should not fail the search: %v", err)
	}
}

func TestNearestStoreError(t *testing.T) {
	store := seededStore()
	store.FindSimilarError = errors.New("connection reset")
	svc := New(store, nil, nil)
	if _, err := svc.Nearest(context.Background(), []float32{1, 0, 0}, 5, 2); err == nil {
		t.Error("expected store error to propagate")
	}
}
