// Package pipeline runs the background convergence loops that keep derived
// data in step with the library as new media arrives: thumbnail repair, the
// face-indexing backlog drain (with a clustering pass once drained), and
// whole-media embedding reindexing. Each loop is independently scheduled;
// none are mutually exclusive and all run for the process lifetime.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbartos/photon/internal/cluster"
	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/extractor"
	"github.com/mbartos/photon/internal/notify"
	"github.com/mbartos/photon/internal/vecmath"
)

// Extraction is the slice of the extractor capability the pipeline needs.
type Extraction interface {
	ExtractImage(ctx context.Context, imageData []byte) ([]float32, error)
	DetectFaces(ctx context.Context, imageData []byte) ([]extractor.Face, error)
}

// Config holds per-loop cadences and thresholds. Zero values are replaced
// by defaults in New; tests inject short intervals.
type Config struct {
	RepairSettle    time.Duration // delay before the first repair pass
	RepairInterval  time.Duration // sleep between repair passes
	DrainSettle     time.Duration // delay before the first drain batch
	DrainBatchSize  int           // unscanned media pulled per batch
	DrainIdleWait   time.Duration // max suspension when backlog is empty
	ReindexSettle   time.Duration // delay before the first reindex pass
	ReindexInterval time.Duration // sleep between reindex passes
	ReindexBatch    int           // media pulled per reindex pass
	FaceSimilarity  float32       // min cosine similarity for face clustering
	ThumbSize       int           // longest edge of regenerated thumbnails
	EmbeddingModel  string        // model tag recorded on stored embeddings
}

func (c Config) withDefaults() Config {
	if c.RepairSettle == 0 {
		c.RepairSettle = 15 * time.Second
	}
	if c.RepairInterval == 0 {
		c.RepairInterval = 24 * time.Hour
	}
	if c.DrainSettle == 0 {
		c.DrainSettle = 10 * time.Second
	}
	if c.DrainBatchSize == 0 {
		c.DrainBatchSize = 200
	}
	if c.DrainIdleWait == 0 {
		c.DrainIdleWait = time.Hour
	}
	if c.ReindexSettle == 0 {
		c.ReindexSettle = 30 * time.Second
	}
	if c.ReindexInterval == 0 {
		c.ReindexInterval = time.Hour
	}
	if c.ReindexBatch == 0 {
		c.ReindexBatch = 100
	}
	if c.FaceSimilarity == 0 {
		c.FaceSimilarity = 0.55
	}
	if c.ThumbSize == 0 {
		c.ThumbSize = 720
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "clip"
	}
	return c
}

// Pipeline owns the three background loops.
type Pipeline struct {
	media      database.MediaWriter
	embeddings database.EmbeddingWriter
	faces      database.FaceWriter
	blobs      database.BlobStore
	extract    Extraction
	notifier   *notify.Broadcaster
	cfg        Config

	wake       chan struct{}
	clustering atomic.Bool
}

// New wires a pipeline. Start must be called exactly once at process
// startup.
func New(
	media database.MediaWriter,
	embeddings database.EmbeddingWriter,
	faces database.FaceWriter,
	blobs database.BlobStore,
	extract Extraction,
	notifier *notify.Broadcaster,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		media:      media,
		embeddings: embeddings,
		faces:      faces,
		blobs:      blobs,
		extract:    extract,
		notifier:   notifier,
		cfg:        cfg.withDefaults(),
		wake:       make(chan struct{}, 1),
	}
}

// Start launches the loops. They exit only when ctx is done at process
// shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	go p.repairLoop(ctx)
	go p.drainLoop(ctx)
	go p.reindexLoop(ctx)
}

// Wake nudges the drain loop out of its idle suspension, e.g. after an
// upload completes. Non-blocking; a pending wake coalesces with later ones.
func (p *Pipeline) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// repairLoop finds media whose derived thumbnail is missing, regenerates it
// and broadcasts a change per fixed item plus a completion summary, then
// sleeps a long interval.
func (p *Pipeline) repairLoop(ctx context.Context) {
	if !sleep(ctx, p.cfg.RepairSettle) {
		return
	}
	for {
		fixed := p.repairPass(ctx)
		if fixed > 0 {
			p.notifier.JobCompleted("thumb-repair", fixed)
		}
		if !sleep(ctx, p.cfg.RepairInterval) {
			return
		}
	}
}

func (p *Pipeline) repairPass(ctx context.Context) int {
	fixed := 0
	for {
		batch, err := p.media.ListMissingThumb(ctx, p.cfg.DrainBatchSize)
		if err != nil {
			slog.Error("repair: listing media with missing thumbnails", "error", err)
			return fixed
		}
		if len(batch) == 0 {
			return fixed
		}
		batchFixed := 0
		for _, m := range batch {
			if ctx.Err() != nil {
				return fixed
			}
			if err := p.repairThumb(ctx, m); err != nil {
				slog.Error("repair: regenerating thumbnail", "media", m.UID, "error", err)
				continue
			}
			fixed++
			batchFixed++
			p.notifier.ItemUpdated(m.UID)
		}
		// Items that failed stay in the backlog; bail out of the pass when a
		// whole batch made no progress so it cannot spin on poisoned inputs.
		if batchFixed == 0 || len(batch) < p.cfg.DrainBatchSize {
			return fixed
		}
	}
}

func (p *Pipeline) repairThumb(ctx context.Context, m database.Media) error {
	data, err := p.blobs.Original(ctx, m.UID)
	if err != nil {
		return err
	}
	thumb, err := renderThumb(data, p.cfg.ThumbSize)
	if err != nil {
		return err
	}
	hash, err := p.blobs.SaveThumb(ctx, m.UID, thumb)
	if err != nil {
		return err
	}
	return p.media.SetThumbHash(ctx, m.UID, hash)
}

// drainLoop pulls bounded batches of unscanned media through face detection.
// While a batch yields work it immediately re-loops; once the backlog is
// empty it dispatches a one-shot face clustering pass on its own goroutine
// and suspends until a wake signal or the idle timeout, whichever first.
func (p *Pipeline) drainLoop(ctx context.Context) {
	if !sleep(ctx, p.cfg.DrainSettle) {
		return
	}
	for {
		processed := p.drainBatch(ctx)
		if ctx.Err() != nil {
			return
		}
		if processed > 0 {
			continue
		}

		p.dispatchFaceClustering(ctx)

		idle := time.NewTimer(p.cfg.DrainIdleWait)
		select {
		case <-p.wake:
			idle.Stop()
		case <-idle.C:
		case <-ctx.Done():
			idle.Stop()
			return
		}
	}
}

// drainBatch processes one batch of unscanned media and returns how many
// items it handled. An extraction failure is logged and the item is marked
// scanned anyway so the backlog always makes forward progress.
func (p *Pipeline) drainBatch(ctx context.Context) int {
	batch, err := p.media.ListUnscanned(ctx, p.cfg.DrainBatchSize)
	if err != nil {
		slog.Error("drain: listing unscanned media", "error", err)
		return 0
	}

	for _, m := range batch {
		if ctx.Err() != nil {
			break
		}
		if err := p.scanFaces(ctx, m); err != nil {
			slog.Error("drain: face scan failed, skipping item", "media", m.UID, "error", err)
		}
		if err := p.media.MarkScanned(ctx, m.UID); err != nil {
			slog.Error("drain: marking media scanned", "media", m.UID, "error", err)
		}
	}
	return len(batch)
}

func (p *Pipeline) scanFaces(ctx context.Context, m database.Media) error {
	data, err := p.blobs.Original(ctx, m.UID)
	if err != nil {
		return err
	}
	detected, err := p.extract.DetectFaces(ctx, data)
	if err != nil {
		return err
	}
	if len(detected) == 0 {
		return nil
	}
	detected = dedupeDetections(detected)

	faces := make([]database.StoredFace, len(detected))
	for i, f := range detected {
		faces[i] = database.StoredFace{
			MediaUID:  m.UID,
			FaceIndex: f.FaceIndex,
			Embedding: f.Embedding,
			BBox:      f.BBox,
			DetScore:  f.DetScore,
			Dim:       len(f.Embedding),
		}
	}
	return p.faces.SaveFaces(ctx, m.UID, faces)
}

// dispatchFaceClustering runs a full face clustering pass on a separate
// goroutine so the drain loop is not blocked by CPU-bound work. At most one
// pass runs at a time; a dispatch while one is running is dropped (the next
// drained backlog will trigger a fresh pass over current state).
func (p *Pipeline) dispatchFaceClustering(ctx context.Context) {
	if !p.clustering.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.clustering.Store(false)
		if err := p.clusterFacesOnce(ctx); err != nil {
			slog.Error("face clustering pass failed", "error", err)
		}
	}()
}

func (p *Pipeline) clusterFacesOnce(ctx context.Context) error {
	faces, err := p.faces.AllFaces(ctx)
	if err != nil {
		return err
	}
	if len(faces) == 0 {
		return nil
	}

	groups, assignments, err := cluster.ClusterFaces(faces, p.cfg.FaceSimilarity)
	if err != nil {
		// Both cap errors are final for this pass; a narrower scope or
		// stricter threshold is an operator decision, not a retry.
		if errors.Is(err, cluster.ErrTooManyEntities) || errors.Is(err, cluster.ErrTooManyPairs) {
			slog.Warn("face clustering skipped", "faces", len(faces), "reason", err)
			return nil
		}
		return err
	}

	if len(assignments) > 0 {
		if err := p.faces.UpdateClusterAssignments(ctx, assignments); err != nil {
			return err
		}
	}
	slog.Info("face clustering pass complete", "faces", len(faces), "clusters", len(groups))
	p.notifier.JobCompleted("face-clustering", len(groups))
	return nil
}

// reindexLoop finds media that should have a whole-media embedding (valid
// file hash) but do not, re-extracts and stores one, then sleeps.
func (p *Pipeline) reindexLoop(ctx context.Context) {
	if !sleep(ctx, p.cfg.ReindexSettle) {
		return
	}
	for {
		reindexed := p.reindexPass(ctx)
		if reindexed > 0 {
			slog.Info("reindex pass complete", "media", reindexed)
		}
		if !sleep(ctx, p.cfg.ReindexInterval) {
			return
		}
	}
}

func (p *Pipeline) reindexPass(ctx context.Context) int {
	reindexed := 0
	for {
		batch, err := p.media.ListMissingEmbedding(ctx, p.cfg.ReindexBatch)
		if err != nil {
			slog.Error("reindex: listing media without embeddings", "error", err)
			return reindexed
		}
		if len(batch) == 0 {
			return reindexed
		}
		batchDone := 0
		for _, m := range batch {
			if ctx.Err() != nil {
				return reindexed
			}
			if err := p.reindexOne(ctx, m); err != nil {
				slog.Error("reindex: re-extracting embedding", "media", m.UID, "error", err)
				continue
			}
			reindexed++
			batchDone++
		}
		if batchDone == 0 || len(batch) < p.cfg.ReindexBatch {
			return reindexed
		}
	}
}

func (p *Pipeline) reindexOne(ctx context.Context, m database.Media) error {
	data, err := p.blobs.Original(ctx, m.UID)
	if err != nil {
		return err
	}
	vec, err := p.extract.ExtractImage(ctx, data)
	if err != nil {
		return err
	}
	return p.embeddings.SaveWithMedia(ctx, m, vecmath.Normalize(vec), p.cfg.EmbeddingModel)
}
