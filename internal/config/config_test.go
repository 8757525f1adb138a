package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_MAX_OPEN_CONNS", "DATABASE_MAX_IDLE_CONNS",
		"EXTRACTOR_URL", "EXTRACTOR_SESSIONS", "EXTRACTOR_MODEL", "BLOB_ROOT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected default 25 open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Extractor.URL != "http://localhost:8000" {
		t.Errorf("unexpected extractor url: %s", cfg.Extractor.URL)
	}
	if cfg.Extractor.Sessions != 4 {
		t.Errorf("expected 4 extractor sessions, got %d", cfg.Extractor.Sessions)
	}
	if cfg.Storage.BlobRoot != "./data" {
		t.Errorf("unexpected blob root: %s", cfg.Storage.BlobRoot)
	}
}

func TestLoadThresholds(t *testing.T) {
	cfg := Load()

	sim := cfg.Thresholds.Similarity
	if sim.DuplicateMaxDistance <= 0 || sim.DuplicateMaxDistance >= 2 {
		t.Errorf("duplicate_max_distance out of range: %f", sim.DuplicateMaxDistance)
	}
	if sim.FaceMinSimilarity <= 0 || sim.FaceMinSimilarity >= 1 {
		t.Errorf("face_min_similarity out of range: %f", sim.FaceMinSimilarity)
	}
	if sim.DefaultSearchPercent <= 0 || sim.DefaultSearchPercent > 100 {
		t.Errorf("default_search_percent out of range: %f", sim.DefaultSearchPercent)
	}

	pipe := cfg.Thresholds.Pipeline
	if pipe.DrainBatch != 200 {
		t.Errorf("expected drain batch 200, got %d", pipe.DrainBatch)
	}
	if pipe.ReindexBatch != 100 {
		t.Errorf("expected reindex batch 100, got %d", pipe.ReindexBatch)
	}
	if pipe.ThumbSize != 720 {
		t.Errorf("expected thumb size 720, got %d", pipe.ThumbSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("EXTRACTOR_MODEL", "siglip")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("invalid env value should fall back to default, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Extractor.Model != "siglip" {
		t.Errorf("expected model siglip, got %s", cfg.Extractor.Model)
	}
}
