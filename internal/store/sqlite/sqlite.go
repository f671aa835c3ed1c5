// Package sqlite stores saved content and its concept classifications.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hejijunhao/mosaiq/internal/model"
)

// ErrContentNotFound is returned when a content id has no stored item.
var ErrContentNotFound = errors.New("content not found")

const timeLayout = time.RFC3339Nano

// Store is a SQLite content and classification store. It satisfies
// jobs.ContentSource and jobs.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens the database at path with WAL mode and foreign keys enabled
// and creates the schema if needed. ":memory:" opens a private in-memory
// database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		// Per-connection pragmas, applied to every pooled connection.
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS content (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	added_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS classifications (
	content_id TEXT NOT NULL,
	concept_id TEXT NOT NULL,
	confidence REAL NOT NULL,
	classified_at TEXT NOT NULL,
	user_verified INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(content_id, concept_id),
	FOREIGN KEY(content_id) REFERENCES content(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_classifications_concept ON classifications(concept_id);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

// PutContent inserts or replaces a content item. A zero AddedAt is set to
// the current time.
func (s *Store) PutContent(ctx context.Context, c model.Content) error {
	if c.ID == "" {
		return errors.New("sqlite: content id is empty")
	}
	if c.AddedAt.IsZero() {
		c.AddedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO content (id, title, text, url, added_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title, text = excluded.text, url = excluded.url`,
		c.ID, c.Title, c.Text, c.URL, c.AddedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: put content %s: %w", c.ID, err)
	}
	return nil
}

// Content returns the stored item for id. A missing id yields an error
// wrapping ErrContentNotFound.
func (s *Store) Content(ctx context.Context, id string) (model.Content, error) {
	var (
		c       model.Content
		addedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, text, url, added_at FROM content WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Text, &c.URL, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Content{}, fmt.Errorf("sqlite: %w: %s", ErrContentNotFound, id)
	}
	if err != nil {
		return model.Content{}, fmt.Errorf("sqlite: content %s: %w", id, err)
	}
	c.AddedAt, _ = time.Parse(timeLayout, addedAt)
	return c, nil
}

// ListContentIDs returns every content id, oldest first.
func (s *Store) ListContentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM content ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list content: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteContent removes an item and its classifications.
func (s *Store) DeleteContent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete content %s: %w", id, err)
	}
	return nil
}

// SaveClassifications replaces the machine classifications of contentID
// with cs. User-verified classifications are kept untouched, including
// their confidence; cs entries for a verified concept are ignored.
func (s *Store) SaveClassifications(ctx context.Context, contentID string, cs []model.ConceptClassification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM classifications WHERE content_id = ? AND user_verified = 0`, contentID); err != nil {
		return fmt.Errorf("sqlite: clear classifications %s: %w", contentID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO classifications (content_id, concept_id, confidence, classified_at, user_verified)
VALUES (?, ?, ?, ?, 0)
ON CONFLICT(content_id, concept_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range cs {
		at := c.ClassifiedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, contentID, c.ConceptID, c.Confidence, at.Format(timeLayout)); err != nil {
			return fmt.Errorf("sqlite: save classification %s/%s: %w", contentID, c.ConceptID, err)
		}
	}
	return tx.Commit()
}

// VerifyClassification marks a concept as confirmed by the user, adding it
// with full confidence if it was not classified.
func (s *Store) VerifyClassification(ctx context.Context, contentID, conceptID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO classifications (content_id, concept_id, confidence, classified_at, user_verified)
VALUES (?, ?, 1.0, ?, 1)
ON CONFLICT(content_id, concept_id) DO UPDATE SET user_verified = 1`,
		contentID, conceptID, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: verify %s/%s: %w", contentID, conceptID, err)
	}
	return nil
}

// Classifications returns the classifications of contentID by descending
// confidence.
func (s *Store) Classifications(ctx context.Context, contentID string) ([]model.ConceptClassification, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT concept_id, confidence, classified_at, user_verified FROM classifications
WHERE content_id = ? ORDER BY confidence DESC, concept_id`, contentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: classifications %s: %w", contentID, err)
	}
	defer rows.Close()

	var out []model.ConceptClassification
	for rows.Next() {
		var (
			c        model.ConceptClassification
			at       string
			verified int
		)
		if err := rows.Scan(&c.ConceptID, &c.Confidence, &at, &verified); err != nil {
			return nil, err
		}
		c.ClassifiedAt, _ = time.Parse(timeLayout, at)
		c.UserVerified = verified != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ContentByConcept returns the ids of content classified under conceptID.
func (s *Store) ContentByConcept(ctx context.Context, conceptID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT content_id FROM classifications WHERE concept_id = ? ORDER BY confidence DESC, content_id`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: content by concept %s: %w", conceptID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
