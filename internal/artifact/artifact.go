// Package artifact persists generated page records. Writes are single-record
// upserts keyed by target id; no operation spans more than one row.
package artifact

import (
	"context"
	"database/sql"
	"time"
)

// Page statuses
const (
	StatusDraft      = "draft"
	StatusGenerating = "generating"
	StatusPublished  = "published"
	StatusFailed     = "failed"
)

// Artifact is one generated page record
type Artifact struct {
	TargetID       string    `json:"target_id"`
	Title          string    `json:"title"`
	Classification string    `json:"classification"`
	Status         string    `json:"status"`
	HTML           string    `json:"html,omitempty"`
	PublicURL      string    `json:"public_url,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store reads and writes artifact records
type Store struct {
	db *sql.DB
}

// NewStore creates an artifact store on the shared database connection
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load fetches an artifact by target id. Returns (nil, nil) when absent.
func (s *Store) Load(ctx context.Context, targetID string) (*Artifact, error) {
	var a Artifact
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT target_id, title, classification, status, html, public_url, updated_at
		FROM artifacts WHERE target_id = ?
	`, targetID).Scan(&a.TargetID, &a.Title, &a.Classification, &a.Status, &a.HTML, &a.PublicURL, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.UpdatedAt = time.Unix(updated, 0)
	return &a, nil
}

// Upsert writes a full artifact record
func (s *Store) Upsert(ctx context.Context, a *Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (target_id, title, classification, status, html, public_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			title = excluded.title,
			classification = excluded.classification,
			status = excluded.status,
			html = excluded.html,
			public_url = excluded.public_url,
			updated_at = excluded.updated_at
	`, a.TargetID, a.Title, a.Classification, a.Status, a.HTML, a.PublicURL, time.Now().Unix())
	return err
}

// UpsertStatus updates only the status of a record, creating it if needed
func (s *Store) UpsertStatus(ctx context.Context, targetID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (target_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, targetID, status, time.Now().Unix())
	return err
}

// ListPublishedBefore returns published pages not updated since the cutoff.
// Used by the audit sweep to find pages due for a re-check.
func (s *Store) ListPublishedBefore(ctx context.Context, cutoff time.Time) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, title, classification, status, public_url, updated_at
		FROM artifacts
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC
	`, StatusPublished, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var updated int64
		if err := rows.Scan(&a.TargetID, &a.Title, &a.Classification, &a.Status, &a.PublicURL, &updated); err != nil {
			return nil, err
		}
		a.UpdatedAt = time.Unix(updated, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}
