package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/vecmath"
)

// FaceRepository stores detected faces and their persisted cluster
// assignments. It satisfies database.FaceWriter.
type FaceRepository struct {
	pool *Pool
}

func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const faceColumns = `id, media_uid, face_index, embedding, bbox, det_score, dim, cluster_id, created_at`

func scanFaces(rows *sql.Rows) ([]database.StoredFace, error) {
	var faces []database.StoredFace
	for rows.Next() {
		var f database.StoredFace
		var vec pgvector.Vector
		if err := rows.Scan(
			&f.ID, &f.MediaUID, &f.FaceIndex, &vec,
			pq.Array(&f.BBox), &f.DetScore, &f.Dim, &f.ClusterID, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("could not scan face: %w", err)
		}
		f.Embedding = vec.Slice()
		vecmath.Normalize(f.Embedding)
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read face rows: %w", err)
	}
	return faces, nil
}

func (r *FaceRepository) GetFaces(ctx context.Context, mediaUID string) ([]database.StoredFace, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+faceColumns+` FROM faces WHERE media_uid = $1 ORDER BY face_index`,
		mediaUID,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

func (r *FaceRepository) CountFaces(ctx context.Context) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faces`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("could not count faces: %w", err)
	}
	return count, nil
}

func (r *FaceRepository) AllFaces(ctx context.Context) ([]database.StoredFace, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+faceColumns+` FROM faces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("could not export faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

func (r *FaceRepository) FindSimilarFaces(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredFace, []float64, error) {
	query := pgvector.NewVector(embedding)
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+faceColumns+`, embedding <=> $1 AS distance
		FROM faces
		WHERE embedding <=> $1 <= $2
		ORDER BY distance
		LIMIT $3`,
		query, maxDistance, limit,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not query similar faces: %w", err)
	}
	defer rows.Close()

	var faces []database.StoredFace
	var distances []float64
	for rows.Next() {
		var f database.StoredFace
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(
			&f.ID, &f.MediaUID, &f.FaceIndex, &vec,
			pq.Array(&f.BBox), &f.DetScore, &f.Dim, &f.ClusterID, &f.CreatedAt,
			&distance,
		); err != nil {
			return nil, nil, fmt.Errorf("could not scan similar face: %w", err)
		}
		f.Embedding = vec.Slice()
		vecmath.Normalize(f.Embedding)
		faces = append(faces, f)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("could not read similar faces: %w", err)
	}
	return faces, distances, nil
}

func (r *FaceRepository) ListClusters(ctx context.Context) ([]database.PersonCluster, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT f.cluster_id, COALESCE(c.name, ''), COUNT(*) AS face_count
		FROM faces f
		LEFT JOIN face_clusters c ON c.cluster_id = f.cluster_id
		WHERE f.cluster_id <> 0
		GROUP BY f.cluster_id, c.name
		HAVING COUNT(*) >= 2
		ORDER BY face_count DESC, f.cluster_id`)
	if err != nil {
		return nil, fmt.Errorf("could not list clusters: %w", err)
	}
	defer rows.Close()

	var clusters []database.PersonCluster
	for rows.Next() {
		var c database.PersonCluster
		if err := rows.Scan(&c.ClusterID, &c.Name, &c.FaceCount); err != nil {
			return nil, fmt.Errorf("could not scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read clusters: %w", err)
	}
	return clusters, nil
}

func (r *FaceRepository) SaveFaces(ctx context.Context, mediaUID string, faces []database.StoredFace) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM faces WHERE media_uid = $1`, mediaUID,
	); err != nil {
		return fmt.Errorf("could not delete existing faces: %w", err)
	}

	for _, f := range faces {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO faces (media_uid, face_index, embedding, bbox, det_score, dim)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			mediaUID, f.FaceIndex, pgvector.NewVector(f.Embedding),
			pq.Array(f.BBox), f.DetScore, len(f.Embedding),
		)
		if err != nil {
			return fmt.Errorf("could not insert face: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit faces: %w", err)
	}
	return nil
}

func (r *FaceRepository) UpdateClusterAssignments(ctx context.Context, assignments map[int64]int64) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE faces SET cluster_id = $2 WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("could not prepare cluster update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for faceID, clusterID := range assignments {
		if _, err := stmt.ExecContext(ctx, faceID, clusterID); err != nil {
			return fmt.Errorf("could not assign face %d to cluster %d: %w", faceID, clusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit cluster assignments: %w", err)
	}
	return nil
}

func (r *FaceRepository) SetClusterName(ctx context.Context, clusterID int64, name string) error {
	res, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO face_clusters (cluster_id, name)
		SELECT $1, $2
		WHERE EXISTS (SELECT 1 FROM faces WHERE cluster_id = $1)
		ON CONFLICT (cluster_id) DO UPDATE SET name = EXCLUDED.name`,
		clusterID, name,
	)
	if err != nil {
		return fmt.Errorf("could not name cluster: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not check cluster name result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cluster %d: %w", clusterID, database.ErrNotFound)
	}
	return nil
}
