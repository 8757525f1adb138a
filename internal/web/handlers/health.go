package handlers

import (
	"log/slog"
	"net/http"

	"github.com/mbartos/photon/internal/database"
)

// HealthHandler reports liveness plus basic library stats.
type HealthHandler struct {
	embeddings database.EmbeddingReader
	faces      database.FaceReader
}

func NewHealthHandler(embeddings database.EmbeddingReader, faces database.FaceReader) *HealthHandler {
	return &HealthHandler{embeddings: embeddings, faces: faces}
}

// Check handles GET /api/v1/health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	embeddingCount, err := h.embeddings.Count(r.Context())
	if err != nil {
		slog.Error("embedding count failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	faceCount, err := h.faces.CountFaces(r.Context())
	if err != nil {
		slog.Error("face count failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"embeddings": embeddingCount,
		"faces":      faceCount,
	})
}
