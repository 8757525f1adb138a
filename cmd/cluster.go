package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbartos/photon/internal/cluster"
	"github.com/mbartos/photon/internal/config"
	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/database/postgres"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Run a face clustering pass over the whole library",
	Long: `Export all face embeddings, group them by similarity and persist the
cluster assignments. The same pass the background pipeline runs after the
drain loop empties its backlog, for running by hand.`,
	RunE: runCluster,
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List near-duplicate media groups",
	RunE:  runDuplicates,
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(duplicatesCmd)

	clusterCmd.Flags().Float64("min-similarity", 0, "Minimum cosine similarity for two faces to match (defaults to configured threshold)")
	duplicatesCmd.Flags().Float64("max-distance", 0, "Maximum cosine distance inside a group (defaults to configured threshold)")
	duplicatesCmd.Flags().String("folder", "", "Restrict grouping to one folder UID")
}

func openPool(ctx context.Context, cfg *config.Config) (*postgres.Pool, error) {
	pool, err := postgres.NewPool(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("database setup failed: %w", err)
	}
	return pool, nil
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	minSimilarity := mustGetFloat64(cmd, "min-similarity")
	if minSimilarity == 0 {
		minSimilarity = cfg.Thresholds.Similarity.FaceMinSimilarity
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	faceRepo := postgres.NewFaceRepository(pool)

	faces, err := faceRepo.AllFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to export faces: %w", err)
	}
	fmt.Printf("Clustering %d faces (min similarity %.2f)...\n", len(faces), minSimilarity)

	groups, assignments, err := cluster.ClusterFaces(faces, float32(minSimilarity))
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	if err := faceRepo.UpdateClusterAssignments(ctx, assignments); err != nil {
		return fmt.Errorf("failed to persist assignments: %w", err)
	}

	fmt.Printf("Done: %d clusters, %d faces assigned, %d singletons left alone\n",
		len(groups), len(assignments), len(faces)-len(assignments))
	return nil
}

func scopeFromFlag(cmd *cobra.Command) database.Scope {
	return database.Scope{FolderUID: mustGetString(cmd, "folder")}
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	maxDistance := mustGetFloat64(cmd, "max-distance")
	if maxDistance == 0 {
		maxDistance = cfg.Thresholds.Similarity.DuplicateMaxDistance
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	embeddingRepo := postgres.NewEmbeddingRepository(pool)

	items, err := embeddingRepo.AllWithVectors(ctx, scopeFromFlag(cmd))
	if err != nil {
		return fmt.Errorf("failed to export vectors: %w", err)
	}
	fmt.Printf("Grouping %d media items (max distance %.2f)...\n", len(items), maxDistance)

	groups, err := cluster.GroupMedia(items, maxDistance)
	if err != nil {
		return fmt.Errorf("grouping failed: %w", err)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}
	for _, g := range groups {
		fmt.Printf("Group %d (%d items, newest %s):\n", g.ID, len(g.Members), g.NewestTakenAt.Format("2006-01-02"))
		for _, m := range g.Members {
			fmt.Printf("  %s  %s\n", m.UID, m.FileName)
		}
	}
	return nil
}
