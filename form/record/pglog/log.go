// Package pglog appends application records to the PostgreSQL
// applications table.
package pglog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/record"
)

// DB is the subset of *sqlx.DB used by the log.
type DB interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const columns = `id, conversation_id, language, answers, attachments, created_at`

const (
	queryAppend = `INSERT INTO applications (` + columns + `)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

	queryGet = `SELECT ` + columns + ` FROM applications WHERE id = $1`

	queryList = `SELECT ` + columns + ` FROM applications ORDER BY created_at DESC, id DESC`

	queryListLimit = queryList + ` LIMIT $1`
)

type row struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Language       string    `db:"language"`
	Answers        []byte    `db:"answers"`
	Attachments    []byte    `db:"attachments"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r row) decode() (record.Record, error) {
	out := record.Record{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Language:       lang.Language(r.Language),
		CreatedAt:      r.CreatedAt,
	}
	if err := json.Unmarshal(r.Answers, &out.Answers); err != nil {
		return record.Record{}, fmt.Errorf("pglog: decode answers %s: %w", r.ID, err)
	}
	if len(r.Attachments) > 0 {
		if err := json.Unmarshal(r.Attachments, &out.Attachments); err != nil {
			return record.Record{}, fmt.Errorf("pglog: decode attachments %s: %w", r.ID, err)
		}
	}
	return out, nil
}

// Log implements record.Log with PostgreSQL.
type Log struct {
	db DB
}

// New wraps db. The table is created by the embedded migrations.
func New(db DB) *Log {
	return &Log{db: db}
}

// Append inserts r; a conflicting id leaves the existing row untouched.
func (l *Log) Append(ctx context.Context, r record.Record) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("pglog: encode answers %s: %w", r.ID, err)
	}
	attachments, err := json.Marshal(r.Attachments)
	if err != nil {
		return fmt.Errorf("pglog: encode attachments %s: %w", r.ID, err)
	}
	_, err = l.db.ExecContext(ctx, queryAppend,
		r.ID, r.ConversationID, string(r.Language), answers, attachments, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("pglog: append %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the record stored under id.
func (l *Log) Get(ctx context.Context, id string) (record.Record, error) {
	var rw row
	if err := l.db.GetContext(ctx, &rw, queryGet, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, record.ErrNotFound
		}
		return record.Record{}, fmt.Errorf("pglog: get %s: %w", id, err)
	}
	return rw.decode()
}

// List returns up to limit records, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]record.Record, error) {
	var rows []row
	var err error
	if limit > 0 {
		err = l.db.SelectContext(ctx, &rows, queryListLimit, limit)
	} else {
		err = l.db.SelectContext(ctx, &rows, queryList)
	}
	if err != nil {
		return nil, fmt.Errorf("pglog: list: %w", err)
	}
	out := make([]record.Record, 0, len(rows))
	for _, rw := range rows {
		r, err := rw.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
