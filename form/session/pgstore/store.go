// Package pgstore keeps sessions in the form_sessions PostgreSQL table as
// JSONB documents.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m3rciful/formbot/form/session"
)

// DB is the subset of *sqlx.DB used by the store.
type DB interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	queryGet = `SELECT payload FROM form_sessions WHERE conversation_id = $1`

	queryPut = `INSERT INTO form_sessions (conversation_id, payload, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (conversation_id) DO UPDATE
SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	queryDelete = `DELETE FROM form_sessions WHERE conversation_id = $1`

	queryList = `SELECT conversation_id FROM form_sessions ORDER BY conversation_id`
)

// Store implements session.Store with PostgreSQL.
type Store struct {
	db DB
}

// New wraps db. The table is created by the embedded migrations.
func New(db DB) *Store {
	return &Store{db: db}
}

// Get loads the session for id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var payload []byte
	if err := s.db.GetContext(ctx, &payload, queryGet, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("pgstore: get %s: %w", id, err)
	}
	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("pgstore: decode %s: %w", id, err)
	}
	return &sess, nil
}

// Put upserts sess.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("pgstore: encode %s: %w", sess.ConversationID, err)
	}
	if _, err := s.db.ExecContext(ctx, queryPut, sess.ConversationID, payload, sess.UpdatedAt); err != nil {
		return fmt.Errorf("pgstore: put %s: %w", sess.ConversationID, err)
	}
	return nil
}

// Delete removes the row for id if present.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, queryDelete, id); err != nil {
		return fmt.Errorf("pgstore: delete %s: %w", id, err)
	}
	return nil
}

// List returns the stored conversation ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, queryList); err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	return ids, nil
}
