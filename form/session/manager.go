package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/formbot/core/logger"
)

const component = "form.session"

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes read-modify-write cycles per conversation and applies
// idle expiry on load.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  Locker
	lockTTL time.Duration
	ttl     time.Duration
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker adds a cross-process lock taken after the local one.
func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithTTL expires sessions idle longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager wraps store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager clock.
func (m *Manager) Now() time.Time { return m.now() }

// TTL returns the configured idle expiry.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock runs fn while holding the conversation lock. Load, Save and
// Delete assume the caller is inside WithLock.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("session: lock %s: %w", id, err)
		}
		defer func() {
			// The parent context may already be cancelled; the lock key still
			// has to go.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, component, "lock.release",
					slog.String("status", "error"),
					slog.String("conversation_id", id),
					slog.String("err", err.Error()),
				)
			}
		}()
	}

	return fn(ctx)
}

// Load returns the session for id. An expired session is deleted and
// reported as ErrExpired.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	if s.Expired(m.now(), m.ttl) {
		if err := m.store.Delete(ctx, id); err != nil {
			return nil, fmt.Errorf("session: delete expired %s: %w", id, err)
		}
		logger.Info(ctx, component, "session.expired",
			slog.String("conversation_id", id),
			slog.Int("step", s.Step),
		)
		return nil, ErrExpired
	}
	return s, nil
}

// Save stamps UpdatedAt and persists s.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = m.now()
	if err := m.store.Put(ctx, s); err != nil {
		return fmt.Errorf("session: put %s: %w", s.ConversationID, err)
	}
	return nil
}

// Delete removes the session for id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// List returns the ids of stored sessions, expired ones included.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored sessions.
func (m *Manager) Count(ctx context.Context) (int, error) {
	ids, err := m.List(ctx)
	return len(ids), err
}

// Sweep deletes every expired session and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	if m.ttl <= 0 {
		return 0, nil
	}
	ids, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			_, err := m.Load(ctx, id)
			switch {
			case errors.Is(err, ErrExpired):
				removed++
				return nil
			case errors.Is(err, ErrNotFound):
				return nil
			}
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
