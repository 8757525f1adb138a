package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbartos/photon/internal/ai"
	"github.com/mbartos/photon/internal/blob"
	"github.com/mbartos/photon/internal/config"
	"github.com/mbartos/photon/internal/database/postgres"
	"github.com/mbartos/photon/internal/extractor"
	"github.com/mbartos/photon/internal/notify"
	"github.com/mbartos/photon/internal/pipeline"
	"github.com/mbartos/photon/internal/similarity"
	"github.com/mbartos/photon/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the similarity engine server",
	Long: `Start the Photon server: the HTTP API plus the background loops that
keep thumbnails, face scans and embeddings converged with the library.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer pool.Close()

	embeddingRepo := postgres.NewEmbeddingRepository(pool)
	faceRepo := postgres.NewFaceRepository(pool)
	mediaRepo := postgres.NewMediaRepository(pool)

	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobRoot)
	if err != nil {
		return fmt.Errorf("blob storage setup failed: %w", err)
	}

	sessions, err := extractor.NewSessions(cfg.Extractor.Sessions, func() (extractor.Extractor, error) {
		client := extractor.NewClient(cfg.Extractor.URL)
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		return client, nil
	})
	if err != nil {
		return fmt.Errorf("extractor setup failed: %w", err)
	}

	var translator similarity.Translator
	if cfg.OpenAI.Token != "" {
		token := cfg.OpenAI.Token
		translator = func(ctx context.Context, query string) (string, error) {
			return ai.TranslateQuery(ctx, token, query)
		}
	}
	similarityService := similarity.New(embeddingRepo, sessions, translator)

	broadcaster := notify.NewBroadcaster()

	pipe := pipeline.New(mediaRepo, embeddingRepo, faceRepo, blobs, sessions, broadcaster, pipeline.Config{
		DrainBatchSize: cfg.Thresholds.Pipeline.DrainBatch,
		ReindexBatch:   cfg.Thresholds.Pipeline.ReindexBatch,
		ThumbSize:      cfg.Thresholds.Pipeline.ThumbSize,
		FaceSimilarity: float32(cfg.Thresholds.Similarity.FaceMinSimilarity),
		EmbeddingModel: cfg.Extractor.Model,
	})
	pipe.Start(ctx)

	server := web.NewServer(port, web.Deps{
		Similarity:  similarityService,
		Embeddings:  embeddingRepo,
		Faces:       faceRepo,
		Media:       mediaRepo,
		Blobs:       blobs,
		Embedder:    sessions,
		Waker:       pipe,
		Broadcaster: broadcaster,
		Thresholds:  cfg.Thresholds,
		Model:       cfg.Extractor.Model,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
	return nil
}
