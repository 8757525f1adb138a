// Package similarity translates a query vector, a reference media id, raw
// image bytes or a text query into a ranked, distance-filtered result list
// over the vector store. It reads the store directly and is independent of
// the background pipeline.
package similarity

import (
	"context"
	"fmt"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/vecmath"
)

// Result is one search hit. Distance is cosine distance in [0, 2].
type Result struct {
	MediaUID string  `json:"media_uid"`
	Distance float64 `json:"distance"`
}

// Embedder is the extraction capability the service needs for image and
// text queries. Satisfied by the pooled extractor sessions.
type Embedder interface {
	ExtractImage(ctx context.Context, imageData []byte) ([]float32, error)
	ExtractText(ctx context.Context, text string) ([]float32, error)
}

// Translator optionally rewrites text queries before embedding. A nil
// translator means queries are embedded as-is.
type Translator func(ctx context.Context, query string) (string, error)

// Service answers similarity queries against the vector store.
type Service struct {
	embeddings database.EmbeddingReader
	embedder   Embedder
	translator Translator
}

// New creates a similarity service. embedder may be nil if only
// vector/by-id queries are used; translator may be nil.
func New(embeddings database.EmbeddingReader, embedder Embedder, translator Translator) *Service {
	return &Service{
		embeddings: embeddings,
		embedder:   embedder,
		translator: translator,
	}
}

// PercentToDistance maps a similarity percentage (0-100) to a cosine
// distance threshold, clamped to [0, 2]. 100% means distance 0, 0% means
// distance 2 (everything).
func PercentToDistance(percent float64) float64 {
	d := 2.0 * (1.0 - percent/100.0)
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

// Nearest returns up to limit media whose cosine distance to the query
// vector is at most maxDistance, ascending by distance. A zero query vector
// is unclassifiable and matches nothing.
func (s *Service) Nearest(ctx context.Context, query []float32, limit int, maxDistance float64) ([]Result, error) {
	if vecmath.IsZero(query) {
		return nil, nil
	}

	stored, distances, err := s.embeddings.FindSimilarWithDistance(ctx, query, limit, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("nearest query: %w", err)
	}

	results := make([]Result, len(stored))
	for i, e := range stored {
		results[i] = Result{MediaUID: e.MediaUID, Distance: distances[i]}
	}
	return results, nil
}

// SearchByID finds media similar to an existing item. The stored vector for
// mediaUID is looked up and queried with limit+1 so the item itself (always
// at distance 0) can be filtered out before truncating to limit.
func (s *Service) SearchByID(ctx context.Context, mediaUID string, limit int, similarityPercent float64) ([]Result, error) {
	stored, err := s.embeddings.Get(ctx, mediaUID)
	if err != nil {
		return nil, fmt.Errorf("loading vector for %s: %w", mediaUID, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("media %s: %w", mediaUID, database.ErrNotFound)
	}

	maxDistance := PercentToDistance(similarityPercent)
	hits, err := s.Nearest(ctx, stored.Embedding, limit+1, maxDistance)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, limit)
	for _, h := range hits {
		if h.MediaUID == mediaUID {
			continue
		}
		results = append(results, h)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// SearchByImage extracts a vector from raw image bytes and queries the
// store with it.
func (s *Service) SearchByImage(ctx context.Context, imageData []byte, limit int, maxDistance float64) ([]Result, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("image search unavailable: no extractor configured")
	}
	vec, err := s.embedder.ExtractImage(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("extracting query image: %w", err)
	}
	return s.Nearest(ctx, vecmath.Normalize(vec), limit, maxDistance)
}

// SearchByText embeds a text query (optionally translated first) and
// queries the store with it.
func (s *Service) SearchByText(ctx context.Context, query string, limit int, maxDistance float64) ([]Result, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("text search unavailable: no extractor configured")
	}

	if s.translator != nil {
		if translated, err := s.translator(ctx, query); err == nil {
			query = translated
		}
		// Translation failure falls back to the original query.
	}

	vec, err := s.embedder.ExtractText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}
	return s.Nearest(ctx, vecmath.Normalize(vec), limit, maxDistance)
}
