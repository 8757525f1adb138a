package extractor

import (
	"context"

	"github.com/mbartos/photon/internal/pool"
)

// DefaultSessions is the fixed number of concurrent inference sessions.
const DefaultSessions = 4

// Sessions is a bounded pool of extractor sessions. Callers queue when all
// sessions are busy; the inference service is never hit with more than the
// pool's size of concurrent requests.
type Sessions struct {
	pool *pool.Pool[Extractor]
}

// NewSessions creates size sessions eagerly via factory. Construction fails
// atomically if any session cannot be created.
func NewSessions(size int, factory func() (Extractor, error)) (*Sessions, error) {
	if size <= 0 {
		size = DefaultSessions
	}
	p, err := pool.New(size, factory, nil)
	if err != nil {
		return nil, err
	}
	return &Sessions{pool: p}, nil
}

// ExtractImage runs whole-media extraction on a pooled session.
func (s *Sessions) ExtractImage(ctx context.Context, imageData []byte) ([]float32, error) {
	var vec []float32
	err := s.pool.With(func(e Extractor) error {
		var err error
		vec, err = e.ExtractImage(ctx, imageData)
		return err
	})
	return vec, err
}

// ExtractText runs text extraction on a pooled session.
func (s *Sessions) ExtractText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := s.pool.With(func(e Extractor) error {
		var err error
		vec, err = e.ExtractText(ctx, text)
		return err
	})
	return vec, err
}

// DetectFaces runs face detection on a pooled session.
func (s *Sessions) DetectFaces(ctx context.Context, imageData []byte) ([]Face, error) {
	var faces []Face
	err := s.pool.With(func(e Extractor) error {
		var err error
		faces, err = e.DetectFaces(ctx, imageData)
		return err
	})
	return faces, err
}

// Size returns the pool capacity.
func (s *Sessions) Size() int {
	return s.pool.Size()
}
