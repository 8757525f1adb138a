package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mbartos/photon/internal/cluster"
	"github.com/mbartos/photon/internal/database"
)

// DuplicatesHandler groups near-identical media on demand. Groups are
// ephemeral: they live only in the response.
type DuplicatesHandler struct {
	embeddings         database.EmbeddingReader
	defaultMaxDistance float64
}

func NewDuplicatesHandler(embeddings database.EmbeddingReader, defaultMaxDistance float64) *DuplicatesHandler {
	return &DuplicatesHandler{
		embeddings:         embeddings,
		defaultMaxDistance: defaultMaxDistance,
	}
}

type duplicatesRequest struct {
	MaxDistance *float64 `json:"max_distance"`
	FolderUID   string   `json:"folder_uid"`
}

// Find handles POST /api/v1/duplicates.
func (h *DuplicatesHandler) Find(w http.ResponseWriter, r *http.Request) {
	var req duplicatesRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	maxDistance := h.defaultMaxDistance
	if req.MaxDistance != nil {
		maxDistance = *req.MaxDistance
	}
	if maxDistance < 0 || maxDistance > 2 {
		respondError(w, http.StatusBadRequest, "max_distance must be in [0, 2]")
		return
	}

	items, err := h.embeddings.AllWithVectors(r.Context(), database.Scope{FolderUID: req.FolderUID})
	if err != nil {
		slog.Error("vector export failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not load vectors")
		return
	}

	groups, err := cluster.GroupMedia(items, maxDistance)
	if err != nil {
		if errors.Is(err, cluster.ErrTooManyEntities) || errors.Is(err, cluster.ErrTooManyPairs) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("duplicate grouping failed", "error", err)
		respondError(w, http.StatusInternalServerError, "grouping failed")
		return
	}

	if groups == nil {
		groups = []cluster.MediaGroup{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"groups":       groups,
		"group_count":  len(groups),
		"max_distance": maxDistance,
	})
}
