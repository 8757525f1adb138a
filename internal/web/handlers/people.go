package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mbartos/photon/internal/cluster"
	"github.com/mbartos/photon/internal/database"
)

// PeopleHandler serves persisted face clusters: running a clustering pass,
// listing clusters and naming them.
type PeopleHandler struct {
	faces         database.FaceWriter
	minSimilarity float32
}

func NewPeopleHandler(faces database.FaceWriter, minSimilarity float32) *PeopleHandler {
	return &PeopleHandler{
		faces:         faces,
		minSimilarity: minSimilarity,
	}
}

// foldName lowercases a name and strips diacritics so "Žofie" matches
// "zofie".
func foldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

type clusterSummary struct {
	ClusterID int64 `json:"cluster_id"`
	FaceCount int   `json:"face_count"`
}

// Cluster handles POST /api/v1/people/cluster: runs a full face clustering
// pass and persists the assignments.
func (h *PeopleHandler) Cluster(w http.ResponseWriter, r *http.Request) {
	faces, err := h.faces.AllFaces(r.Context())
	if err != nil {
		slog.Error("face export failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not load faces")
		return
	}

	groups, assignments, err := cluster.ClusterFaces(faces, h.minSimilarity)
	if err != nil {
		if errors.Is(err, cluster.ErrTooManyEntities) || errors.Is(err, cluster.ErrTooManyPairs) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("face clustering failed", "error", err)
		respondError(w, http.StatusInternalServerError, "clustering failed")
		return
	}

	if err := h.faces.UpdateClusterAssignments(r.Context(), assignments); err != nil {
		slog.Error("cluster assignment write failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not persist clusters")
		return
	}

	summaries := make([]clusterSummary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, clusterSummary{
			ClusterID: g.ClusterID,
			FaceCount: len(g.Faces),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"clusters":       summaries,
		"cluster_count":  len(summaries),
		"faces_assigned": len(assignments),
	})
}

// List handles GET /api/v1/people. The optional q parameter filters by
// name, diacritics-insensitive.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.faces.ListClusters(r.Context())
	if err != nil {
		slog.Error("cluster listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list people")
		return
	}

	if q := foldName(r.URL.Query().Get("q")); q != "" {
		filtered := clusters[:0]
		for _, c := range clusters {
			if strings.Contains(foldName(c.Name), q) {
				filtered = append(filtered, c)
			}
		}
		clusters = filtered
	}

	if clusters == nil {
		clusters = []database.PersonCluster{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"people": clusters,
		"count":  len(clusters),
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

// Name handles PUT /api/v1/people/{clusterID}.
func (h *PeopleHandler) Name(w http.ResponseWriter, r *http.Request) {
	clusterID, err := strconv.ParseInt(chi.URLParam(r, "clusterID"), 10, 64)
	if err != nil || clusterID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid cluster id")
		return
	}

	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.faces.SetClusterName(r.Context(), clusterID, name); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "cluster not found")
			return
		}
		slog.Error("cluster naming failed", "cluster_id", clusterID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not name cluster")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cluster_id": clusterID,
		"name":       name,
		"folded":     foldName(name),
	})
}
