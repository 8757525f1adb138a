// Package mock provides in-memory implementations of the database and blob
// interfaces for testing. Similarity queries are an exact scan over the
// stored vectors using cosine distance, matching the semantics of the
// PostgreSQL implementation.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/vecmath"
)

// Store is an in-memory implementation of EmbeddingWriter, FaceWriter,
// MediaWriter and BlobStore. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	media      map[string]*database.Media
	mediaOrder []string // insertion order, used for distance tie-breaking

	embeddings map[string]*database.StoredEmbedding

	faces      map[string][]database.StoredFace // by media UID
	nextFaceID int64
	clusters   map[int64]string // cluster id -> name

	originals map[string][]byte
	thumbs    map[string][]byte

	// Error injection: when set, the matching operation fails with it.
	GetError         error
	FindSimilarError error
	SaveError        error
	ListError        error
	FacesError       error
	BlobError        error
}

// NewStore creates an empty mock store.
func NewStore() *Store {
	return &Store{
		media:      make(map[string]*database.Media),
		embeddings: make(map[string]*database.StoredEmbedding),
		faces:      make(map[string][]database.StoredFace),
		clusters:   make(map[int64]string),
		originals:  make(map[string][]byte),
		thumbs:     make(map[string][]byte),
	}
}

// AddMedia seeds a media row.
func (s *Store) AddMedia(m database.Media) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[m.UID]; !ok {
		s.mediaOrder = append(s.mediaOrder, m.UID)
	}
	cp := m
	s.media[m.UID] = &cp
}

// AddEmbedding seeds a media row together with its embedding.
func (s *Store) AddEmbedding(m database.Media, vec []float32) {
	s.AddMedia(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[m.UID] = &database.StoredEmbedding{
		MediaUID:  m.UID,
		Embedding: append([]float32(nil), vec...),
		Dim:       len(vec),
	}
}

// AddOriginal seeds original media bytes for the blob store.
func (s *Store) AddOriginal(mediaUID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originals[mediaUID] = data
}

// --- EmbeddingReader / EmbeddingWriter ---

func (s *Store) Get(ctx context.Context, mediaUID string) (*database.StoredEmbedding, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[mediaUID]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Embedding = vecmath.Normalize(append([]float32(nil), e.Embedding...))
	return &cp, nil
}

func (s *Store) Has(ctx context.Context, mediaUID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.embeddings[mediaUID]
	return ok, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if s.GetError != nil {
		return 0, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings), nil
}

func (s *Store) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredEmbedding, []float64, error) {
	if s.FindSimilarError != nil {
		return nil, nil, s.FindSimilarError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		order    int
		emb      database.StoredEmbedding
		distance float64
	}
	var hits []hit
	for i, uid := range s.mediaOrder {
		e, ok := s.embeddings[uid]
		if !ok {
			continue
		}
		d := vecmath.CosineDistance(embedding, e.Embedding)
		if d > maxDistance {
			continue
		}
		cp := *e
		cp.Embedding = vecmath.Normalize(append([]float32(nil), e.Embedding...))
		hits = append(hits, hit{order: i, emb: cp, distance: d})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].order < hits[j].order
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	embs := make([]database.StoredEmbedding, len(hits))
	dists := make([]float64, len(hits))
	for i, h := range hits {
		embs[i] = h.emb
		dists[i] = h.distance
	}
	return embs, dists, nil
}

func (s *Store) AllWithVectors(ctx context.Context, scope database.Scope) ([]database.MediaVector, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.MediaVector
	for _, uid := range s.mediaOrder {
		e, ok := s.embeddings[uid]
		if !ok {
			continue
		}
		m := s.media[uid]
		if !scope.All() && m.FolderUID != scope.FolderUID {
			continue
		}
		out = append(out, database.MediaVector{
			Summary: database.MediaSummary{
				UID:       m.UID,
				FolderUID: m.FolderUID,
				FileName:  m.FileName,
				TakenAt:   m.TakenAt,
			},
			Vector: vecmath.Normalize(append([]float32(nil), e.Embedding...)),
		})
	}
	return out, nil
}

func (s *Store) SaveWithMedia(ctx context.Context, media database.Media, embedding []float32, model string) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[media.UID]; !ok {
		s.mediaOrder = append(s.mediaOrder, media.UID)
	}
	cp := media
	s.media[media.UID] = &cp
	s.embeddings[media.UID] = &database.StoredEmbedding{
		MediaUID:  media.UID,
		Embedding: append([]float32(nil), embedding...),
		Model:     model,
		Dim:       len(embedding),
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, mediaUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.embeddings, mediaUID)
	return nil
}

// --- FaceReader / FaceWriter ---

func (s *Store) GetFaces(ctx context.Context, mediaUID string) ([]database.StoredFace, error) {
	if s.FacesError != nil {
		return nil, s.FacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]database.StoredFace(nil), s.faces[mediaUID]...), nil
}

func (s *Store) CountFaces(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, fs := range s.faces {
		n += len(fs)
	}
	return n, nil
}

func (s *Store) AllFaces(ctx context.Context) ([]database.StoredFace, error) {
	if s.FacesError != nil {
		return nil, s.FacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.StoredFace
	for _, uid := range s.mediaOrder {
		for _, f := range s.faces[uid] {
			f.Embedding = vecmath.Normalize(append([]float32(nil), f.Embedding...))
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) FindSimilarFaces(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredFace, []float64, error) {
	if s.FindSimilarError != nil {
		return nil, nil, s.FindSimilarError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		face     database.StoredFace
		distance float64
	}
	var hits []hit
	for _, uid := range s.mediaOrder {
		for _, f := range s.faces[uid] {
			d := vecmath.CosineDistance(embedding, f.Embedding)
			if d > maxDistance {
				continue
			}
			hits = append(hits, hit{face: f, distance: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	faces := make([]database.StoredFace, len(hits))
	dists := make([]float64, len(hits))
	for i, h := range hits {
		faces[i] = h.face
		dists[i] = h.distance
	}
	return faces, dists, nil
}

func (s *Store) ListClusters(ctx context.Context) ([]database.PersonCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for _, fs := range s.faces {
		for _, f := range fs {
			if f.ClusterID != 0 {
				counts[f.ClusterID]++
			}
		}
	}
	var out []database.PersonCluster
	for id, n := range counts {
		if n < 2 {
			continue
		}
		out = append(out, database.PersonCluster{ClusterID: id, Name: s.clusters[id], FaceCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out, nil
}

func (s *Store) SaveFaces(ctx context.Context, mediaUID string, faces []database.StoredFace) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]database.StoredFace, len(faces))
	for i, f := range faces {
		s.nextFaceID++
		f.ID = s.nextFaceID
		f.MediaUID = mediaUID
		stored[i] = f
	}
	s.faces[mediaUID] = stored
	return nil
}

func (s *Store) UpdateClusterAssignments(ctx context.Context, assignments map[int64]int64) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, fs := range s.faces {
		for i, f := range fs {
			if clusterID, ok := assignments[f.ID]; ok {
				fs[i].ClusterID = clusterID
			}
		}
		s.faces[uid] = fs
	}
	return nil
}

func (s *Store) SetClusterName(ctx context.Context, clusterID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, fs := range s.faces {
		for _, f := range fs {
			if f.ClusterID == clusterID {
				found = true
			}
		}
	}
	if !found {
		return fmt.Errorf("cluster %d: %w", clusterID, database.ErrNotFound)
	}
	s.clusters[clusterID] = name
	return nil
}

// --- MediaReader / MediaWriter ---

func (s *Store) GetMedia(ctx context.Context, mediaUID string) (*database.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[mediaUID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListUnscanned(ctx context.Context, limit int) ([]database.Media, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.Media
	for _, uid := range s.mediaOrder {
		m := s.media[uid]
		if m.Scanned {
			continue
		}
		out = append(out, *m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListMissingThumb(ctx context.Context, limit int) ([]database.Media, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.Media
	for _, uid := range s.mediaOrder {
		m := s.media[uid]
		if m.ThumbHash != database.MissingThumbHash {
			continue
		}
		out = append(out, *m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListMissingEmbedding(ctx context.Context, limit int) ([]database.Media, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.Media
	for _, uid := range s.mediaOrder {
		m := s.media[uid]
		if m.FileHash == "" {
			continue
		}
		if _, ok := s.embeddings[uid]; ok {
			continue
		}
		out = append(out, *m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpsertMedia(ctx context.Context, media database.Media) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.AddMedia(media)
	return nil
}

func (s *Store) MarkScanned(ctx context.Context, mediaUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaUID]
	if !ok {
		return fmt.Errorf("media %s: %w", mediaUID, database.ErrNotFound)
	}
	m.Scanned = true
	return nil
}

func (s *Store) SetThumbHash(ctx context.Context, mediaUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[mediaUID]
	if !ok {
		return fmt.Errorf("media %s: %w", mediaUID, database.ErrNotFound)
	}
	m.ThumbHash = hash
	return nil
}

// --- BlobStore ---

func (s *Store) Original(ctx context.Context, mediaUID string) ([]byte, error) {
	if s.BlobError != nil {
		return nil, s.BlobError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.originals[mediaUID]
	if !ok {
		return nil, fmt.Errorf("original for %s: %w", mediaUID, database.ErrNotFound)
	}
	return data, nil
}

func (s *Store) SaveOriginal(ctx context.Context, mediaUID string, data []byte) (string, error) {
	if s.BlobError != nil {
		return "", s.BlobError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originals[mediaUID] = data
	return fmt.Sprintf("hash-%s", mediaUID), nil
}

func (s *Store) SaveThumb(ctx context.Context, mediaUID string, data []byte) (string, error) {
	if s.BlobError != nil {
		return "", s.BlobError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbs[mediaUID] = data
	return fmt.Sprintf("thumb-%s", mediaUID), nil
}

// ThumbCount returns the number of stored thumbnails (test inspection).
func (s *Store) ThumbCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.thumbs)
}
