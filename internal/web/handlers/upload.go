package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/similarity"
)

const maxUploadSize = 256 << 20 // 256 MB

// maxConcurrentIndexing bounds how many uploads run embedding extraction
// at the same time. Further uploads wait.
const maxConcurrentIndexing = 2

// OriginalStore is the write side of blob storage the upload path needs.
type OriginalStore interface {
	SaveOriginal(ctx context.Context, mediaUID string, data []byte) (string, error)
}

// Waker pokes the background pipeline after new media arrives.
type Waker interface {
	Wake()
}

// UploadHandler ingests new media: stores the original, indexes its
// embedding inline and leaves face detection and thumbnails to the
// background pipeline.
type UploadHandler struct {
	media      database.MediaWriter
	embeddings database.EmbeddingWriter
	blobs      OriginalStore
	embedder   similarity.Embedder
	waker      Waker
	model      string
	sem        *semaphore.Weighted
}

func NewUploadHandler(
	media database.MediaWriter,
	embeddings database.EmbeddingWriter,
	blobs OriginalStore,
	embedder similarity.Embedder,
	waker Waker,
	model string,
) *UploadHandler {
	return &UploadHandler{
		media:      media,
		embeddings: embeddings,
		blobs:      blobs,
		embedder:   embedder,
		waker:      waker,
		model:      model,
		sem:        semaphore.NewWeighted(maxConcurrentIndexing),
	}
}

// Upload handles POST /api/v1/upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
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
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty file")
		return
	}

	if err := h.sem.Acquire(r.Context(), 1); err != nil {
		respondError(w, http.StatusServiceUnavailable, "upload cancelled")
		return
	}
	defer h.sem.Release(1)

	mediaUID := uuid.New().String()
	fileName := filepath.Base(header.Filename)

	hash, err := h.blobs.SaveOriginal(r.Context(), mediaUID, data)
	if err != nil {
		slog.Error("original store failed", "media_uid", mediaUID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	media := database.Media{
		UID:       mediaUID,
		FolderUID: r.FormValue("folder_uid"),
		FileName:  fileName,
		FileHash:  hash,
	}

	indexed := false
	embedding, err := h.embedder.ExtractImage(r.Context(), data)
	if err != nil {
		// the reindex loop picks this media up later
		slog.Warn("inline indexing failed, deferring to pipeline",
			"media_uid", mediaUID, "file", sanitizeForLog(fileName), "error", err)
		if err := h.media.UpsertMedia(r.Context(), media); err != nil {
			slog.Error("media upsert failed", "media_uid", mediaUID, "error", err)
			respondError(w, http.StatusInternalServerError, "could not record media")
			return
		}
	} else {
		if err := h.embeddings.SaveWithMedia(r.Context(), media, embedding, h.model); err != nil {
			slog.Error("embedding save failed", "media_uid", mediaUID, "error", err)
			respondError(w, http.StatusInternalServerError, "could not index media")
			return
		}
		indexed = true
	}

	h.waker.Wake()

	respondJSON(w, http.StatusAccepted, map[string]any{
		"media_uid": mediaUID,
		"file_name": fileName,
		"file_hash": hash,
		"indexed":   indexed,
	})
}
