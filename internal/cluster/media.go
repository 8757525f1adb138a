package cluster

import (
	"sort"
	"time"

	"github.com/mbartos/photon/internal/database"
)

// MediaGroup is one group of near-duplicate media. Group ids are renumbered
// 0..K per call and are not stable across calls.
type MediaGroup struct {
	ID            int                     `json:"id"`
	Members       []database.MediaSummary `json:"members"`
	NewestTakenAt time.Time               `json:"newest_taken_at"`
}

// GroupMedia clusters media items into duplicate groups. The threshold is a
// maximum cosine distance in [0, 2]; it is converted to the engine's minimum
// dot product with minDot = 1 - maxDistance. Groups are sorted by their
// newest member's timestamp, descending, then assigned sequential ids for
// this call only.
func GroupMedia(items []database.MediaVector, maxDistance float64) ([]MediaGroup, error) {
	vectors := make([][]float32, len(items))
	for i, it := range items {
		vectors[i] = it.Vector
	}

	components, err := Components(vectors, float32(1-maxDistance))
	if err != nil {
		return nil, err
	}

	groups := make([]MediaGroup, 0, len(components))
	for _, members := range components {
		g := MediaGroup{Members: make([]database.MediaSummary, 0, len(members))}
		for _, idx := range members {
			s := items[idx].Summary
			g.Members = append(g.Members, s)
			if s.TakenAt.After(g.NewestTakenAt) {
				g.NewestTakenAt = s.TakenAt
			}
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].NewestTakenAt.After(groups[j].NewestTakenAt)
	})
	for i := range groups {
		groups[i].ID = i
	}

	return groups, nil
}
