package cluster

import (
	"sort"

	"github.com/mbartos/photon/internal/database"
)

// FaceGroup is one persisted face cluster. The cluster id is the smallest
// face ID in the component, so the same set of faces always yields the same
// id regardless of input order or scheduling.
type FaceGroup struct {
	ClusterID int64                 `json:"cluster_id"`
	Faces     []database.StoredFace `json:"faces"`
}

// ClusterFaces groups faces by embedding similarity. The threshold is a raw
// minimum cosine similarity in [-1, 1], passed to the engine unchanged.
// Returns the groups plus the per-face assignment map (face ID -> cluster
// id) for the caller to persist. Singleton faces get no assignment.
func ClusterFaces(faces []database.StoredFace, minSimilarity float32) ([]FaceGroup, map[int64]int64, error) {
	vectors := make([][]float32, len(faces))
	for i, f := range faces {
		vectors[i] = f.Embedding
	}

	components, err := Components(vectors, minSimilarity)
	if err != nil {
		return nil, nil, err
	}

	groups := make([]FaceGroup, 0, len(components))
	assignments := make(map[int64]int64)
	for _, members := range components {
		clusterID := faces[members[0]].ID
		for _, idx := range members[1:] {
			if id := faces[idx].ID; id < clusterID {
				clusterID = id
			}
		}

		g := FaceGroup{ClusterID: clusterID, Faces: make([]database.StoredFace, 0, len(members))}
		for _, idx := range members {
			f := faces[idx]
			f.ClusterID = clusterID
			g.Faces = append(g.Faces, f)
			assignments[f.ID] = clusterID
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ClusterID < groups[j].ClusterID
	})

	return groups, assignments, nil
}
