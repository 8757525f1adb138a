package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/similarity"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 200
	maxImageQuerySize  = 32 << 20 // 32 MB
)

// SearchHandler serves the similarity query endpoints.
type SearchHandler struct {
	service              *similarity.Service
	defaultSimilarityPct float64
	defaultImageMaxDist  float64
}

func NewSearchHandler(service *similarity.Service, defaultSimilarityPct, defaultImageMaxDist float64) *SearchHandler {
	return &SearchHandler{
		service:              service,
		defaultSimilarityPct: defaultSimilarityPct,
		defaultImageMaxDist:  defaultImageMaxDist,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

type similarRequest struct {
	MediaUID          string   `json:"media_uid"`
	Limit             int      `json:"limit"`
	SimilarityPercent *float64 `json:"similarity_percent"`
}

// Similar handles POST /api/v1/search/similar: nearest neighbors of an
// already indexed media item.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.MediaUID == "" {
		respondError(w, http.StatusBadRequest, "media_uid is required")
		return
	}

	percent := h.defaultSimilarityPct
	if req.SimilarityPercent != nil {
		percent = *req.SimilarityPercent
	}

	results, err := h.service.SearchByID(r.Context(), req.MediaUID, clampLimit(req.Limit), percent)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "media not found")
			return
		}
		slog.Error("similar search failed", "media_uid", sanitizeForLog(req.MediaUID), "error", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, searchResponse(results))
}

// ByImage handles POST /api/v1/search/image: nearest neighbors of an
// uploaded image that is not part of the library.
func (h *SearchHandler) ByImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageQuerySize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read file")
		return
	}

	limit := clampLimit(formInt(r, "limit"))
	maxDistance := formFloat(r, "max_distance", h.defaultImageMaxDist)

	results, err := h.service.SearchByImage(r.Context(), data, limit, maxDistance)
	if err != nil {
		slog.Error("image search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, searchResponse(results))
}

type textSearchRequest struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit"`
	MaxDistance *float64 `json:"max_distance"`
}

// ByText handles POST /api/v1/search/text: free-text search over the
// library's embedding space.
func (h *SearchHandler) ByText(w http.ResponseWriter, r *http.Request) {
	var req textSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	maxDistance := h.defaultImageMaxDist
	if req.MaxDistance != nil {
		maxDistance = *req.MaxDistance
	}

	results, err := h.service.SearchByText(r.Context(), req.Query, clampLimit(req.Limit), maxDistance)
	if err != nil {
		slog.Error("text search failed", "query", sanitizeForLog(req.Query), "error", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, searchResponse(results))
}

func searchResponse(results []similarity.Result) map[string]any {
	if results == nil {
		results = []similarity.Result{}
	}
	return map[string]any{
		"results": results,
		"count":   len(results),
	}
}
