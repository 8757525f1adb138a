package database

import (
	"time"
)

// Embedding dimensions produced by the extractor sidecar.
const (
	MediaEmbeddingDim = 1280
	FaceEmbeddingDim  = 512
)

// MissingThumbHash is the sentinel stored on a media row whose derived
// thumbnail has not been generated yet (or was invalidated). The repair loop
// queries for this value.
const MissingThumbHash = ""

// Media represents one media item (photo or video) in the gallery.
type Media struct {
	UID       string
	FolderUID string
	FileName  string
	FileHash  string // content hash of the original, empty until ingested
	ThumbHash string // derived thumbnail hash, MissingThumbHash until generated
	TakenAt   time.Time
	Scanned   bool // face detection has been run, regardless of result
	CreatedAt time.Time
}

// MediaSummary is the minimal metadata carried alongside a vector for
// ordering and display. The engine never outlives one query or clustering
// pass's view of these.
type MediaSummary struct {
	UID       string
	FolderUID string
	FileName  string
	TakenAt   time.Time
}

// StoredEmbedding represents a whole-media embedding stored in the database.
type StoredEmbedding struct {
	MediaUID  string
	Embedding []float32
	Model     string
	Dim       int
	CreatedAt time.Time
}

// MediaVector pairs a media summary with its stored embedding, normalized on
// read. Produced by bulk export for clustering.
type MediaVector struct {
	Summary MediaSummary
	Vector  []float32
}

// StoredFace represents a face embedding stored in the database.
type StoredFace struct {
	ID        int64
	MediaUID  string
	FaceIndex int
	Embedding []float32
	BBox      []float64 // [x1, y1, x2, y2] in raw pixel coordinates
	DetScore  float64
	Dim       int
	ClusterID int64 // 0 until a clustering pass assigns one
	CreatedAt time.Time
}

// PersonCluster summarizes one persisted face cluster.
type PersonCluster struct {
	ClusterID int64
	Name      string
	FaceCount int
}

// Scope optionally restricts bulk vector export, e.g. to a single folder.
// The zero value means the whole library.
type Scope struct {
	FolderUID string
}

// All reports whether the scope covers the whole library.
func (s Scope) All() bool {
	return s.FolderUID == ""
}
