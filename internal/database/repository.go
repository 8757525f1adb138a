package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced entity has no stored record.
var ErrNotFound = errors.New("not found")

// EmbeddingReader provides read-only access to whole-media embeddings.
// Vectors are L2-normalized on read; a stored zero vector is passed through
// unchanged and must be treated as non-comparable.
type EmbeddingReader interface {
	// Get retrieves an embedding by media UID, returns nil if not found.
	Get(ctx context.Context, mediaUID string) (*StoredEmbedding, error)
	// Has checks if an embedding exists for the given media UID.
	Has(ctx context.Context, mediaUID string) (bool, error)
	// Count returns the total number of embeddings stored.
	Count(ctx context.Context) (int, error)
	// FindSimilarWithDistance returns up to limit media whose cosine distance
	// to the query vector is at most maxDistance, ordered ascending by
	// distance. Distance range is [0, 2]. This is an exact scan.
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]StoredEmbedding, []float64, error)
	// AllWithVectors exports every stored vector with its media summary,
	// optionally restricted to a scope. Used by the clustering engine.
	AllWithVectors(ctx context.Context, scope Scope) ([]MediaVector, error)
}

// EmbeddingWriter provides write access to whole-media embeddings.
type EmbeddingWriter interface {
	EmbeddingReader

	// SaveWithMedia upserts the media metadata and its embedding in a single
	// transaction: either both succeed or neither does.
	SaveWithMedia(ctx context.Context, media Media, embedding []float32, model string) error
	// Delete removes the embedding for a media item.
	Delete(ctx context.Context, mediaUID string) error
}

// FaceReader provides read-only access to face embeddings and their
// persisted cluster assignments.
type FaceReader interface {
	// GetFaces retrieves all faces for a media item.
	GetFaces(ctx context.Context, mediaUID string) ([]StoredFace, error)
	// CountFaces returns the total number of faces stored.
	CountFaces(ctx context.Context) (int, error)
	// AllFaces exports every stored face with its vector normalized on read.
	// Used by the clustering engine.
	AllFaces(ctx context.Context) ([]StoredFace, error)
	// FindSimilarFaces returns up to limit faces within maxDistance of the
	// query vector, ordered ascending by distance.
	FindSimilarFaces(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]StoredFace, []float64, error)
	// ListClusters returns the persisted face clusters with at least two
	// members.
	ListClusters(ctx context.Context) ([]PersonCluster, error)
}

// FaceWriter provides write access to face data.
type FaceWriter interface {
	FaceReader

	// SaveFaces stores the faces detected on a media item, replacing any
	// existing faces for that item, in one transaction.
	SaveFaces(ctx context.Context, mediaUID string, faces []StoredFace) error
	// UpdateClusterAssignments writes cluster ids onto face records in one
	// transaction. The map is keyed by face ID.
	UpdateClusterAssignments(ctx context.Context, assignments map[int64]int64) error
	// SetClusterName names a persisted cluster.
	SetClusterName(ctx context.Context, clusterID int64, name string) error
}

// MediaReader provides the backlog queries the background pipeline derives
// its work from. There is no queue entity; the backlog is re-derived from
// flags on the media rows.
type MediaReader interface {
	// GetMedia retrieves a media item by UID, returns nil if not found.
	GetMedia(ctx context.Context, mediaUID string) (*Media, error)
	// ListUnscanned returns up to limit media not yet processed for faces.
	ListUnscanned(ctx context.Context, limit int) ([]Media, error)
	// ListMissingThumb returns up to limit media whose thumbnail hash is the
	// missing sentinel.
	ListMissingThumb(ctx context.Context, limit int) ([]Media, error)
	// ListMissingEmbedding returns up to limit media with a valid file hash
	// but no stored whole-media embedding.
	ListMissingEmbedding(ctx context.Context, limit int) ([]Media, error)
}

// MediaWriter provides write access to media rows.
type MediaWriter interface {
	MediaReader

	// UpsertMedia inserts or updates a media row.
	UpsertMedia(ctx context.Context, media Media) error
	// MarkScanned flags a media item as processed for face detection,
	// regardless of whether detection succeeded.
	MarkScanned(ctx context.Context, mediaUID string) error
	// SetThumbHash records the derived thumbnail hash for a media item.
	SetThumbHash(ctx context.Context, mediaUID, hash string) error
}

// BlobStore loads original media bytes and stores derived thumbnails. The
// on-disk layout is owned by the ingest side; the pipeline only consumes
// this capability.
type BlobStore interface {
	// Original returns the raw bytes of the original media file.
	Original(ctx context.Context, mediaUID string) ([]byte, error)
	// SaveThumb persists a derived thumbnail and returns its content hash.
	SaveThumb(ctx context.Context, mediaUID string, data []byte) (string, error)
}
