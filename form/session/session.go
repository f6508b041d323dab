// Package session keeps the durable per-conversation progress of the
// application form and serializes access to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/script"
)

var (
	// ErrNotFound is returned when no session is stored for a conversation.
	ErrNotFound = errors.New("session: not found")
	// ErrExpired is returned by Manager.Load for sessions idle longer than
	// the TTL. It matches ErrNotFound with errors.Is.
	ErrExpired = fmt.Errorf("%w: expired", ErrNotFound)
)

// Answer is one accepted value, tied to the step that collected it.
type Answer struct {
	Step  string           `json:"step"`
	Kind  script.InputKind `json:"kind"`
	Value string           `json:"value"`
}

// Attachment is a platform file reference collected during the form.
type Attachment struct {
	Kind   script.InputKind `json:"kind"`
	FileID string           `json:"file_id"`
}

// Session is the in-progress form of one conversation.
type Session struct {
	ConversationID string `json:"conversation_id"`
	// Language is empty only while AwaitingLanguage is set.
	Language         lang.Language `json:"language,omitempty"`
	AwaitingLanguage bool          `json:"awaiting_language,omitempty"`
	// Step is the index of the active question; len(Answers) == Step.
	Step        int          `json:"step"`
	Answers     []Answer     `json:"answers"`
	Attachments []Attachment `json:"attachments,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// New returns an empty session at the first step.
func New(conversationID string, language lang.Language, now time.Time) *Session {
	return &Session{
		ConversationID: conversationID,
		Language:       language,
		Answers:        []Answer{},
		StartedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Answers = append([]Answer{}, s.Answers...)
	if s.Attachments != nil {
		out.Attachments = append([]Attachment(nil), s.Attachments...)
	}
	return &out
}

// Expired reports whether the session was idle longer than ttl at now.
// A non-positive ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.UpdatedAt) > ttl
}

// Store persists sessions keyed by conversation id. Implementations must be
// durable when Put returns and must not share memory with the caller.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// Locker serializes access to one key across processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
