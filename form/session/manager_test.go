package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/session"
	"github.com/m3rciful/formbot/form/session/sessiontest"
)

func TestMemoryStore_Contract(t *testing.T) {
	sessiontest.RunStoreContract(t, session.NewMemoryStore())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManager_WithLockSerializesPerKey(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, session.New("42", lang.RU, time.Now())))

	var wg sync.WaitGroup
	const workers = 50
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "42", func(ctx context.Context) error {
				s, err := m.Load(ctx, "42")
				if err != nil {
					return err
				}
				s.Answers = append(s.Answers, session.Answer{Step: "n"})
				s.Step++
				return m.Save(ctx, s)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := m.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, workers, s.Step)
	assert.Len(t, s.Answers, workers)
}

func TestManager_LoadExpired(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := session.NewMemoryStore()
	m := session.NewManager(store, session.WithTTL(time.Hour), session.WithClock(c.Now))
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, session.New("7", lang.UZ, c.Now())))
	c.Advance(30 * time.Minute)
	_, err := m.Load(ctx, "7")
	require.NoError(t, err)

	c.Advance(2 * time.Hour)
	_, err = m.Load(ctx, "7")
	assert.ErrorIs(t, err, session.ErrExpired)
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = store.Get(ctx, "7")
	assert.ErrorIs(t, err, session.ErrNotFound, "expired session must be deleted")
}

func TestManager_Sweep(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := session.NewManager(session.NewMemoryStore(), session.WithTTL(time.Hour), session.WithClock(c.Now))
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, session.New("old-1", lang.RU, c.Now())))
	require.NoError(t, m.Save(ctx, session.New("old-2", lang.RU, c.Now())))
	c.Advance(90 * time.Minute)
	require.NoError(t, m.Save(ctx, session.New("fresh", lang.RU, c.Now())))

	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestManager_SweepWithoutTTL(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, session.New("1", lang.RU, time.Unix(0, 0))))

	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	err      error
}

func (f *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (session.UnlockFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.locked = append(f.locked, key)
	f.mu.Unlock()
	return func(context.Context) error {
		f.mu.Lock()
		f.unlocked = append(f.unlocked, key)
		f.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	m := session.NewManager(session.NewMemoryStore(), session.WithLocker(locker, time.Second))

	called := false
	err := m.WithLock(context.Background(), "99", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"99"}, locker.locked)
	assert.Equal(t, []string{"99"}, locker.unlocked)

	locker.err = errors.New("redis down")
	err = m.WithLock(context.Background(), "99", func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.Error(t, err)
}

func TestSession_Clone(t *testing.T) {
	s := session.New("1", lang.RU, time.Now())
	s.Answers = append(s.Answers, session.Answer{Step: "name", Value: "Иван"})
	s.Attachments = []session.Attachment{{FileID: "f"}}

	c := s.Clone()
	c.Answers[0].Value = "Пётр"
	c.Attachments[0].FileID = "g"

	assert.Equal(t, "Иван", s.Answers[0].Value)
	assert.Equal(t, "f", s.Attachments[0].FileID)
}
