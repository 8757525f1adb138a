// Package extractor talks to the embedding sidecar: an HTTP service hosting
// the neural-network inference that turns images into visual-feature vectors
// and detects faces. The service is opaque, slow and CPU-bound; photon holds
// a small fixed pool of sessions against it.
package extractor

import "context"

// Face is a single detected face with its embedding.
type Face struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// Extractor produces embedding vectors from raw media bytes. Production and
// test implementations are interchangeable.
type Extractor interface {
	// ExtractImage computes the whole-media visual-feature vector.
	ExtractImage(ctx context.Context, imageData []byte) ([]float32, error)
	// ExtractText computes an embedding for a text query in the same space
	// as image embeddings.
	ExtractText(ctx context.Context, text string) ([]float32, error)
	// DetectFaces detects faces and computes a per-face embedding for each.
	DetectFaces(ctx context.Context, imageData []byte) ([]Face, error)
}
