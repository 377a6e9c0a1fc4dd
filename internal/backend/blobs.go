package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BlobKind separates uploads from the outputs derived from them.
type BlobKind string

const (
	BlobUpload  BlobKind = "upload"
	BlobPreview BlobKind = "preview"
	BlobCrop    BlobKind = "crop"
)

// timeLayout keeps a fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrBlobNotFound is returned when no blob has the requested id.
var ErrBlobNotFound = errors.New("blob not found")

// Blob is one stored image.
type Blob struct {
	ID        string
	Kind      BlobKind
	Name      string
	MIMEType  string
	Data      []byte
	SourceID  string
	CreatedAt time.Time
}

// Put stores data and returns the new blob id.
func (s *Store) Put(ctx context.Context, blob Blob) (string, error) {
	id := uuid.NewString()
	created := time.Now().UTC()
	var source sql.NullString
	if blob.SourceID != "" {
		source = sql.NullString{String: blob.SourceID, Valid: true}
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO blobs (id, kind, name, mime_type, data, size, source_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(blob.Kind), blob.Name, blob.MIMEType, blob.Data, len(blob.Data), source, created.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert %s blob: %w", blob.Kind, err)
	}
	return id, nil
}

// Get loads a blob of the given kind.
func (s *Store) Get(ctx context.Context, kind BlobKind, id string) (Blob, error) {
	var (
		blob       Blob
		kindRaw    string
		source     sql.NullString
		createdRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, name, mime_type, data, source_id, created_at FROM blobs WHERE id = ? AND kind = ?`,
		id, string(kind),
	).Scan(&blob.ID, &kindRaw, &blob.Name, &blob.MIMEType, &blob.Data, &source, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, ErrBlobNotFound
	}
	if err != nil {
		return Blob{}, fmt.Errorf("load %s blob: %w", kind, err)
	}
	blob.Kind = BlobKind(kindRaw)
	blob.SourceID = source.String
	if ts, parseErr := time.Parse(timeLayout, createdRaw); parseErr == nil {
		blob.CreatedAt = ts
	}
	return blob, nil
}

// BlobStats summarizes stored blobs per kind.
type BlobStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Stats returns blob counts and sizes grouped by kind.
func (s *Store) Stats(ctx context.Context) (map[BlobKind]BlobStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1), COALESCE(SUM(size), 0) FROM blobs GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("blob stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[BlobKind]BlobStats)
	for rows.Next() {
		var (
			kind  string
			entry BlobStats
		)
		if err := rows.Scan(&kind, &entry.Count, &entry.Bytes); err != nil {
			return nil, err
		}
		stats[BlobKind(kind)] = entry
	}
	return stats, rows.Err()
}

// Prune deletes blobs created before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM blobs WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune blobs: %w", err)
	}
	return res.RowsAffected()
}
