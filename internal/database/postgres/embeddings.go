package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/vecmath"
)

// EmbeddingRepository stores whole-media embeddings in the embeddings
// table. It satisfies database.EmbeddingWriter.
type EmbeddingRepository struct {
	pool *Pool
}

func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

func (r *EmbeddingRepository) Get(ctx context.Context, mediaUID string) (*database.StoredEmbedding, error) {
	rows, err := r.pool.pgx.Query(ctx, `
		SELECT media_uid, embedding, model, dim, created_at
		FROM embeddings
		WHERE media_uid = $1`,
		mediaUID,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query embedding: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var e database.StoredEmbedding
	var vec pgvector.Vector
	if err := rows.Scan(&e.MediaUID, &vec, &e.Model, &e.Dim, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("could not scan embedding: %w", err)
	}
	e.Embedding = vec.Slice()
	vecmath.Normalize(e.Embedding)
	return &e, nil
}

func (r *EmbeddingRepository) Has(ctx context.Context, mediaUID string) (bool, error) {
	var exists bool
	err := r.pool.pgx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM embeddings WHERE media_uid = $1)`,
		mediaUID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("could not check embedding: %w", err)
	}
	return exists, nil
}

func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.pgx.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("could not count embeddings: %w", err)
	}
	return count, nil
}

func (r *EmbeddingRepository) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredEmbedding, []float64, error) {
	query := pgvector.NewVector(embedding)
	rows, err := r.pool.pgx.Query(ctx, `
		SELECT media_uid, embedding, model, dim, created_at, embedding <=> $1 AS distance
		FROM embeddings
		WHERE embedding <=> $1 <= $2
		ORDER BY distance
		LIMIT $3`,
		query, maxDistance, limit,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not query similar embeddings: %w", err)
	}
	defer rows.Close()

	var results []database.StoredEmbedding
	var distances []float64
	for rows.Next() {
		var e database.StoredEmbedding
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(&e.MediaUID, &vec, &e.Model, &e.Dim, &e.CreatedAt, &distance); err != nil {
			return nil, nil, fmt.Errorf("could not scan similar embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		vecmath.Normalize(e.Embedding)
		results = append(results, e)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("could not read similar embeddings: %w", err)
	}
	return results, distances, nil
}

func (r *EmbeddingRepository) AllWithVectors(ctx context.Context, scope database.Scope) ([]database.MediaVector, error) {
	query := `
		SELECT m.uid, m.folder_uid, m.file_name, COALESCE(m.taken_at, m.created_at), e.embedding
		FROM embeddings e
		JOIN media m ON m.uid = e.media_uid`
	args := []any{}
	if !scope.All() {
		query += ` WHERE m.folder_uid = $1`
		args = append(args, scope.FolderUID)
	}
	query += ` ORDER BY m.uid`

	rows, err := r.pool.pgx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not export vectors: %w", err)
	}
	defer rows.Close()

	var items []database.MediaVector
	for rows.Next() {
		var item database.MediaVector
		var vec pgvector.Vector
		if err := rows.Scan(
			&item.Summary.UID,
			&item.Summary.FolderUID,
			&item.Summary.FileName,
			&item.Summary.TakenAt,
			&vec,
		); err != nil {
			return nil, fmt.Errorf("could not scan vector export: %w", err)
		}
		item.Vector = vec.Slice()
		vecmath.Normalize(item.Vector)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read vector export: %w", err)
	}
	return items, nil
}

func (r *EmbeddingRepository) SaveWithMedia(ctx context.Context, media database.Media, embedding []float32, model string) error {
	tx, err := r.pool.pgx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO media (uid, folder_uid, file_name, file_hash, thumb_hash, taken_at, scanned)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (uid) DO UPDATE SET
			folder_uid = EXCLUDED.folder_uid,
			file_name = EXCLUDED.file_name,
			file_hash = EXCLUDED.file_hash`,
		media.UID, media.FolderUID, media.FileName, media.FileHash,
		media.ThumbHash, nullableTime(media.TakenAt), media.Scanned,
	)
	if err != nil {
		return fmt.Errorf("could not upsert media: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO embeddings (media_uid, embedding, model, dim)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (media_uid) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()`,
		media.UID, pgvector.NewVector(embedding), model, len(embedding),
	)
	if err != nil {
		return fmt.Errorf("could not upsert embedding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit embedding: %w", err)
	}
	return nil
}

func (r *EmbeddingRepository) Delete(ctx context.Context, mediaUID string) error {
	_, err := r.pool.pgx.Exec(ctx,
		`DELETE FROM embeddings WHERE media_uid = $1`, mediaUID)
	if err != nil {
		return fmt.Errorf("could not delete embedding: %w", err)
	}
	return nil
}
