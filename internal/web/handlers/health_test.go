package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/database/mock"
)

func TestHealthCheck(t *testing.T) {
	store := mock.NewStore()
	store.AddEmbedding(database.Media{UID: "a"}, []float32{1, 0})
	store.AddEmbedding(database.Media{UID: "b"}, []float32{0, 1})
	if err := store.SaveFaces(context.Background(), "a", []database.StoredFace{{Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("SaveFaces failed: %v", err)
	}

	handler := NewHealthHandler(store, store)

	rec := httptest.NewRecorder()
	handler.Check(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatus(t, rec, http.StatusOK)

	var resp struct {
		Status     string `json:"status"`
		Embeddings int    `json:"embeddings"`
		Faces      int    `json:"faces"`
	}
	decodeResponse(t, rec, &resp)

	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.Embeddings != 2 || resp.Faces != 1 {
		t.Errorf("unexpected counts: %+v", resp)
	}
}

func TestHealthCheckStorageDown(t *testing.T) {
	store := mock.NewStore()
	store.GetError = errors.New("connection refused")

	handler := NewHealthHandler(store, store)

	rec := httptest.NewRecorder()
	handler.Check(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatus(t, rec, http.StatusServiceUnavailable)
}
