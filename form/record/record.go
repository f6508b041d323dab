// Package record defines the immutable application record produced by a
// completed form and the append-only log it is written to.
package record

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/session"
)

// ErrNotFound is returned by Log.Get for unknown ids.
var ErrNotFound = errors.New("record: not found")

// Record is a finished application. It is never mutated once appended.
type Record struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	Language       lang.Language        `json:"language"`
	Answers        []session.Answer     `json:"answers"`
	Attachments    []session.Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// NewID combines the conversation id with the session start time. It is
// unique per session and stable across submit retries of the same session.
func NewID(conversationID string, startedAt time.Time) string {
	return conversationID + "-" + strconv.FormatInt(startedAt.UnixNano(), 10)
}

// FromSession copies the collected values of s into a new record.
func FromSession(s *session.Session, now time.Time) Record {
	c := s.Clone()
	return Record{
		ID:             NewID(s.ConversationID, s.StartedAt),
		ConversationID: s.ConversationID,
		Language:       s.Language,
		Answers:        c.Answers,
		Attachments:    c.Attachments,
		CreatedAt:      now,
	}
}

// Answer returns the value collected by step, if any.
func (r Record) Answer(step string) (string, bool) {
	for _, a := range r.Answers {
		if a.Step == step {
			return a.Value, true
		}
	}
	return "", false
}

// Log is the append-only application store.
type Log interface {
	// Append writes r. Appending an id that already exists is a no-op.
	Append(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
}

type memoryLog struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryLog returns an in-process Log for tests and development.
func NewMemoryLog() Log {
	return &memoryLog{records: make(map[string]Record)}
}

func (m *memoryLog) Append(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; ok {
		return nil
	}
	m.records[r.ID] = clone(r)
	return nil
}

func (m *memoryLog) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(r), nil
}

func (m *memoryLog) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, clone(r))
	}
	m.mu.RUnlock()
	return Newest(out, limit), nil
}

// Newest sorts records by creation time, newest first, and truncates to limit.
func Newest(records []Record, limit int) []Record {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func clone(r Record) Record {
	r.Answers = append([]session.Answer(nil), r.Answers...)
	r.Attachments = append([]session.Attachment(nil), r.Attachments...)
	return r
}
