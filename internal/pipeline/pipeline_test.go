package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/database/mock"
	"github.com/mbartos/photon/internal/extractor"
	"github.com/mbartos/photon/internal/notify"
)

// fakeExtractor is a scriptable Extraction implementation.
type fakeExtractor struct {
	imageCalls atomic.Int64
	faceCalls  atomic.Int64
	failFaces  bool
	faces      []extractor.Face
	vector     []float32
}

func (f *fakeExtractor) ExtractImage(ctx context.Context, imageData []byte) ([]float32, error) {
	f.imageCalls.Add(1)
	if f.vector == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.vector, nil
}

func (f *fakeExtractor) DetectFaces(ctx context.Context, imageData []byte) ([]extractor.Face, error) {
	f.faceCalls.Add(1)
	if f.failFaces {
		return nil, errors.New("inference crashed")
	}
	return f.faces, nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func shortConfig() Config {
	return Config{
		RepairSettle:    time.Millisecond,
		RepairInterval:  time.Hour,
		DrainSettle:     time.Millisecond,
		DrainBatchSize:  10,
		DrainIdleWait:   time.Hour,
		ReindexSettle:   time.Millisecond,
		ReindexInterval: time.Hour,
		ReindexBatch:    10,
		FaceSimilarity:  0.9,
		ThumbSize:       32,
		EmbeddingModel:  "clip",
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDrainMarksScannedAndSavesFaces(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{UID: "m1", FileHash: "h1"})
	store.AddOriginal("m1", testJPEG(t))

	fx := &fakeExtractor{faces: []extractor.Face{
		{FaceIndex: 0, Embedding: []float32{1, 0}, BBox: []float64{1, 2, 3, 4}, DetScore: 0.98},
	}}
	p := New(store, store, store, store, fx, notify.NewBroadcaster(), shortConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.drainLoop(ctx)

	waitFor(t, 2*time.Second, func() bool {
		m, _ := store.GetMedia(context.Background(), "m1")
		return m != nil && m.Scanned
	})

	faces, err := store.GetFaces(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(faces) != 1 || faces[0].DetScore != 0.98 {
		t.Errorf("expected one stored face, got %v", faces)
	}
}

func TestDrainPoisonedInputIsSkippedNotRetried(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{UID: "bad", FileHash: "h1"})
	store.AddOriginal("bad", testJPEG(t))

	fx := &fakeExtractor{failFaces: true}
	p := New(store, store, store, store, fx, notify.NewBroadcaster(), shortConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.drainLoop(ctx)

	// The item must be marked scanned despite extraction failing, so the
	// backlog makes forward progress instead of spinning on it.
	waitFor(t, 2*time.Second, func() bool {
		m, _ := store.GetMedia(context.Background(), "bad")
		return m != nil && m.Scanned
	})

	if faces, _ := store.GetFaces(context.Background(), "bad"); len(faces) != 0 {
		t.Errorf("no faces should be stored for a failed item, got %v", faces)
	}
}

func TestDrainDispatchesClusteringWhenBacklogEmpty(t *testing.T) {
	store := mock.NewStore()
	// Two media items with near-identical faces; backlog drains, then the
	// one-shot clustering pass must assign them one cluster id.
	for _, uid := range []string{"m1", "m2"} {
		store.AddMedia(database.Media{UID: uid, FileHash: "h"})
		store.AddOriginal(uid, testJPEG(t))
	}
	fx := &fakeExtractor{faces: []extractor.Face{
		{FaceIndex: 0, Embedding: []float32{1, 0}, DetScore: 0.9},
	}}

	notifier := notify.NewBroadcaster()
	events := notifier.Subscribe()
	p := New(store, store, store, store, fx, notifier, shortConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.drainLoop(ctx)

	waitFor(t, 2*time.Second, func() bool {
		clusters, _ := store.ListClusters(context.Background())
		return len(clusters) == 1
	})

	clusters, _ := store.ListClusters(context.Background())
	if clusters[0].FaceCount != 2 {
		t.Errorf("expected cluster of 2 faces, got %+v", clusters[0])
	}

	// A job_completed notification is broadcast for the clustering pass.
	waitFor(t, 2*time.Second, func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Type == notify.TypeJobCompleted && ev.Job == "face-clustering" {
					return true
				}
			default:
				return false
			}
		}
	})
}

func TestWakeInterruptsIdleWait(t *testing.T) {
	store := mock.NewStore() // empty backlog from the start
	fx := &fakeExtractor{}
	p := New(store, store, store, store, fx, notify.NewBroadcaster(), shortConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.drainLoop(ctx)

	// Let the loop go idle, then add work and wake it. DrainIdleWait is an
	// hour, so only the wake signal can cause the new item to be scanned.
	time.Sleep(50 * time.Millisecond)
	store.AddMedia(database.Media{UID: "late", FileHash: "h"})
	store.AddOriginal("late", testJPEG(t))
	p.Wake()

	waitFor(t, 2*time.Second, func() bool {
		m, _ := store.GetMedia(context.Background(), "late")
		return m != nil && m.Scanned
	})
}

func TestRepairLoopRegeneratesThumbs(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{UID: "m1", FileHash: "h1", ThumbHash: database.MissingThumbHash})
	store.AddOriginal("m1", testJPEG(t))

	notifier := notify.NewBroadcaster()
	events := notifier.Subscribe()
	p := New(store, store, store, store, &fakeExtractor{}, notifier, shortConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.repairLoop(ctx)

	waitFor(t, 2*time.Second, func() bool {
		m, _ := store.GetMedia(context.Background(), "m1")
		return m != nil && m.ThumbHash != database.MissingThumbHash
	})
	if store.ThumbCount() != 1 {
		t.Errorf("expected 1 stored thumbnail, got %d", store.ThumbCount())
	}

	// Per-item notification plus a completion summary.
	var sawItem, sawJob bool
	waitFor(t, 2*time.Second, func() bool {
		for {
			select {
			case ev := <-events:
				switch ev.Type {
				case notify.TypeItemUpdated:
					sawItem = true
				case notify.TypeJobCompleted:
					sawJob = true
				}
			default:
				return sawItem && sawJob
			}
		}
	})
}

func TestReindexLoopFillsMissingEmbeddings(t *testing.T) {
	store := mock.NewStore()
	store.AddMedia(database.Media{UID: "m1", FileHash: "h1"})
	store.AddOriginal("m1", testJPEG(t))

	fx := &fakeExtractor{vector: []float32{3, 4, 0}}
	p := New(store, store, store, store, fx, notify.NewBroadcaster(), shortConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.reindexLoop(ctx)

	waitFor(t, 2*time.Second, func() bool {
		ok, _ := store.Has(context.Background(), "m1")
		return ok
	})

	stored, err := store.Get(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Vector is stored normalized.
	if d := stored.Embedding[0] - 0.6; d > 1e-5 || d < -1e-5 {
		t.Errorf("expected normalized vector, got %v", stored.Embedding)
	}
}
