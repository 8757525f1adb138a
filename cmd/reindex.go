package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mbartos/photon/internal/blob"
	"github.com/mbartos/photon/internal/config"
	"github.com/mbartos/photon/internal/database/postgres"
	"github.com/mbartos/photon/internal/extractor"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Extract embeddings for media that have none",
	Long: `Find media with a valid file hash but no stored embedding, run them
through the extractor and store the results. The same work the background
reindex loop does hourly, as a one-shot batch with a progress bar.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)

	reindexCmd.Flags().Int("limit", 0, "Maximum number of media to reindex (0 = all)")
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	limit := mustGetInt(cmd, "limit")
	if limit <= 0 {
		limit = 1 << 20
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	mediaRepo := postgres.NewMediaRepository(pool)
	embeddingRepo := postgres.NewEmbeddingRepository(pool)

	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobRoot)
	if err != nil {
		return fmt.Errorf("blob storage setup failed: %w", err)
	}

	client := extractor.NewClient(cfg.Extractor.URL)
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("extractor unreachable: %w", err)
	}

	backlog, err := mediaRepo.ListMissingEmbedding(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list backlog: %w", err)
	}
	if len(backlog) == 0 {
		fmt.Println("All media already have embeddings!")
		return nil
	}

	bar := progressbar.NewOptions(len(backlog),
		progressbar.OptionSetDescription("Extracting embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("media"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var done, failed int
	for _, m := range backlog {
		if ctx.Err() != nil {
			break
		}

		err := func() error {
			data, err := blobs.Original(ctx, m.UID)
			if err != nil {
				return err
			}
			embedding, err := client.ExtractImage(ctx, data)
			if err != nil {
				return err
			}
			return embeddingRepo.SaveWithMedia(ctx, m, embedding, cfg.Extractor.Model)
		}()
		if err != nil {
			failed++
			fmt.Printf("\n%s: %v\n", m.UID, err)
		} else {
			done++
		}
		_ = bar.Add(1)
	}

	fmt.Printf("\nDone: %d indexed, %d failed\n", done, failed)
	return nil
}
