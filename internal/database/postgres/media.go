package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbartos/photon/internal/database"
)

// MediaRepository stores media metadata rows and serves the backlog
// queries the background pipeline runs on. It satisfies
// database.MediaWriter.
type MediaRepository struct {
	pool *Pool
}

func NewMediaRepository(pool *Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

const mediaColumns = `uid, folder_uid, file_name, file_hash, thumb_hash, taken_at, scanned, created_at`

func scanMedia(rows *sql.Rows) ([]database.Media, error) {
	var items []database.Media
	for rows.Next() {
		var m database.Media
		var takenAt sql.NullTime
		if err := rows.Scan(
			&m.UID, &m.FolderUID, &m.FileName, &m.FileHash,
			&m.ThumbHash, &takenAt, &m.Scanned, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("could not scan media: %w", err)
		}
		if takenAt.Valid {
			m.TakenAt = takenAt.Time
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read media rows: %w", err)
	}
	return items, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (r *MediaRepository) GetMedia(ctx context.Context, mediaUID string) (*database.Media, error) {
	var m database.Media
	var takenAt sql.NullTime
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE uid = $1`,
		mediaUID,
	).Scan(
		&m.UID, &m.FolderUID, &m.FileName, &m.FileHash,
		&m.ThumbHash, &takenAt, &m.Scanned, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not get media: %w", err)
	}
	if takenAt.Valid {
		m.TakenAt = takenAt.Time
	}
	return &m, nil
}

func (r *MediaRepository) ListUnscanned(ctx context.Context, limit int) ([]database.Media, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE NOT scanned ORDER BY created_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list unscanned media: %w", err)
	}
	defer rows.Close()
	return scanMedia(rows)
}

func (r *MediaRepository) ListMissingThumb(ctx context.Context, limit int) ([]database.Media, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE thumb_hash = '' ORDER BY created_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list media missing thumbnails: %w", err)
	}
	defer rows.Close()
	return scanMedia(rows)
}

func (r *MediaRepository) ListMissingEmbedding(ctx context.Context, limit int) ([]database.Media, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE file_hash <> ''
		  AND NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.media_uid = media.uid)
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list media missing embeddings: %w", err)
	}
	defer rows.Close()
	return scanMedia(rows)
}

func (r *MediaRepository) UpsertMedia(ctx context.Context, media database.Media) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO media (uid, folder_uid, file_name, file_hash, thumb_hash, taken_at, scanned)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (uid) DO UPDATE SET
			folder_uid = EXCLUDED.folder_uid,
			file_name = EXCLUDED.file_name,
			file_hash = EXCLUDED.file_hash,
			taken_at = EXCLUDED.taken_at`,
		media.UID, media.FolderUID, media.FileName, media.FileHash,
		media.ThumbHash, nullableTime(media.TakenAt), media.Scanned,
	)
	if err != nil {
		return fmt.Errorf("could not upsert media: %w", err)
	}
	return nil
}

func (r *MediaRepository) MarkScanned(ctx context.Context, mediaUID string) error {
	_, err := r.pool.db.ExecContext(ctx,
		`UPDATE media SET scanned = TRUE WHERE uid = $1`, mediaUID)
	if err != nil {
		return fmt.Errorf("could not mark media scanned: %w", err)
	}
	return nil
}

func (r *MediaRepository) SetThumbHash(ctx context.Context, mediaUID, hash string) error {
	_, err := r.pool.db.ExecContext(ctx,
		`UPDATE media SET thumb_hash = $2 WHERE uid = $1`, mediaUID, hash)
	if err != nil {
		return fmt.Errorf("could not set thumbnail hash: %w", err)
	}
	return nil
}
