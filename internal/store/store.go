package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a history record does not exist.
var ErrNotFound = errors.New("advice item not found")

// AdviceItem is one persisted, completed consultation.
type AdviceItem struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Messages  string    `json:"messages"`       // JSON-encoded message sequence
	Docs      string    `json:"docs,omitempty"` // JSON-encoded docs mapping, may be empty
	CreatedAt time.Time `json:"created_at"`
}

// Store is the history CRUD boundary over postgres.
type Store struct {
	DB *sql.DB
}

// NewWithDSN opens and pings a postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// List returns advice items ordered by id, with skip/limit paging.
func (s *Store) List(ctx context.Context, skip, limit int) ([]AdviceItem, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, topic, messages, COALESCE(docs, ''), created_at
FROM advice_items ORDER BY id OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AdviceItem
	for rows.Next() {
		var it AdviceItem
		if err := rows.Scan(&it.ID, &it.Topic, &it.Messages, &it.Docs, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Create persists a completed consultation and returns it with the
// server-assigned id.
func (s *Store) Create(ctx context.Context, topic, messages, docs string) (AdviceItem, error) {
	var docsArg interface{}
	if docs != "" {
		docsArg = docs
	}
	it := AdviceItem{Topic: topic, Messages: messages, Docs: docs}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO advice_items (topic, messages, docs, created_at)
VALUES ($1, $2, $3, NOW()) RETURNING id, created_at`, topic, messages, docsArg).
		Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		return AdviceItem{}, err
	}
	return it, nil
}

// Get returns one advice item or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (AdviceItem, error) {
	var it AdviceItem
	err := s.DB.QueryRowContext(ctx, `
SELECT id, topic, messages, COALESCE(docs, ''), created_at
FROM advice_items WHERE id=$1`, id).
		Scan(&it.ID, &it.Topic, &it.Messages, &it.Docs, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AdviceItem{}, ErrNotFound
		}
		return AdviceItem{}, err
	}
	return it, nil
}

// Delete removes one advice item or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM advice_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
