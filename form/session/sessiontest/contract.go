// Package sessiontest provides a behavioural test suite every session.Store
// implementation must pass.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
)

// RunStoreContract exercises store against the session.Store contract.
func RunStoreContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	id := "contract-" + time.Now().Format("150405.000000")

	t.Run("put and get", func(t *testing.T) {
		s := session.New(id, lang.UZ, now)
		s.Step = 2
		s.Answers = []session.Answer{
			{Step: script.StepName, Kind: script.KindText, Value: "Aziz"},
			{Step: script.StepAddress, Kind: script.KindLocation, Value: "41.311081,69.240562"},
		}
		s.Attachments = []session.Attachment{{Kind: script.KindPhoto, FileID: "AgAD-photo"}}
		require.NoError(t, store.Put(ctx, s))

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ConversationID)
		assert.Equal(t, lang.UZ, got.Language)
		assert.Equal(t, 2, got.Step)
		assert.Equal(t, s.Answers, got.Answers)
		assert.Equal(t, s.Attachments, got.Attachments)
		assert.True(t, now.Equal(got.StartedAt))
	})

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		got.Answers[0].Value = "mutated"
		got.Answers = append(got.Answers, session.Answer{Step: "x"})

		again, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Aziz", again.Answers[0].Value)
		assert.Len(t, again.Answers, 2)
	})

	t.Run("put replaces", func(t *testing.T) {
		s := session.New(id, lang.RU, now)
		require.NoError(t, store.Put(ctx, s))

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, lang.RU, got.Language)
		assert.Equal(t, 0, got.Step)
		assert.Empty(t, got.Answers)
		assert.Empty(t, got.Attachments)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, id))
		require.NoError(t, store.Delete(ctx, id))
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		id1, id2 := id+"-1", id+"-2"
		require.NoError(t, store.Put(ctx, session.New(id1, lang.RU, now)))
		require.NoError(t, store.Put(ctx, session.New(id2, lang.RU, now)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
		assert.NotContains(t, ids, id)
	})
}
