package db

import (
	"context"
	"database/sql"
	"errors"
)

// ChunkRow - одна строка манифеста в каталоге
type ChunkRow struct {
	Dataset    string  `json:"dataset"`
	Split      string  `json:"split"`
	ChunkID    string  `json:"chunk_id"`
	FilePath   string  `json:"file_path"`
	FileHash   string  `json:"file_hash"`
	DurationMs float64 `json:"duration_ms"`
	Transcript string  `json:"transcript"`
}

// UpsertChunk inserts the row or refreshes it when (dataset, chunk_id)
// is already known.
func (d *DB) UpsertChunk(ctx context.Context, c ChunkRow) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO corpus_chunks
		(dataset, split, chunk_id, file_path, file_hash, duration_ms, transcript)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			split = VALUES(split),
			file_path = VALUES(file_path),
			file_hash = VALUES(file_hash),
			duration_ms = VALUES(duration_ms),
			transcript = VALUES(transcript)`,
		c.Dataset, c.Split, c.ChunkID, c.FilePath, c.FileHash, c.DurationMs, c.Transcript)
	return err
}

func (d *DB) GetChunk(ctx context.Context, dataset, chunkID string) (*ChunkRow, error) {
	var c ChunkRow
	err := d.conn.QueryRowContext(ctx, `
		SELECT dataset, split, chunk_id, file_path, file_hash, duration_ms, transcript
		FROM corpus_chunks WHERE dataset = ? AND chunk_id = ?`, dataset, chunkID).
		Scan(&c.Dataset, &c.Split, &c.ChunkID, &c.FilePath, &c.FileHash, &c.DurationMs, &c.Transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SplitStats - количество и суммарная длительность по сплиту
type SplitStats struct {
	Split      string  `json:"split"`
	Chunks     int64   `json:"chunks"`
	DurationMs float64 `json:"duration_ms"`
}

func (d *DB) Stats(ctx context.Context, dataset string) ([]SplitStats, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT split, COUNT(*), COALESCE(SUM(duration_ms), 0)
		FROM corpus_chunks WHERE dataset = ?
		GROUP BY split ORDER BY split`, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SplitStats
	for rows.Next() {
		var s SplitStats
		if err := rows.Scan(&s.Split, &s.Chunks, &s.DurationMs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteChunk removes a row whose manifest line was dropped by verification.
func (d *DB) DeleteChunk(ctx context.Context, dataset, chunkID string) error {
	_, err := d.conn.ExecContext(ctx, `DELETE FROM corpus_chunks WHERE dataset = ? AND chunk_id = ?`, dataset, chunkID)
	return err
}
