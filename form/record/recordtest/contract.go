// Package recordtest provides the behavioural suite shared by record.Log
// implementations.
package recordtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
)

// Sample returns a filled record for conversation id created at ts.
func Sample(conversationID string, ts time.Time) record.Record {
	return record.Record{
		ID:             record.NewID(conversationID, ts),
		ConversationID: conversationID,
		Language:       lang.RU,
		Answers: []session.Answer{
			{Step: script.StepName, Kind: script.KindText, Value: "Иван"},
			{Step: script.StepAddress, Kind: script.KindText, Value: "Ташкент, ул. Мира 5"},
			{Step: script.StepPhone, Kind: script.KindContact, Value: "+998901234567"},
		},
		Attachments: []session.Attachment{{Kind: script.KindPhoto, FileID: "AgAD-1"}},
		CreatedAt:   ts,
	}
}

// RunLogContract exercises log against the record.Log contract.
func RunLogContract(t *testing.T, log record.Log) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	first := Sample("100", base)
	second := Sample("100", base.Add(time.Second))
	third := Sample("200", base.Add(2*time.Second))

	t.Run("append and get", func(t *testing.T) {
		require.NoError(t, log.Append(ctx, first))
		got, err := log.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ConversationID, got.ConversationID)
		assert.Equal(t, first.Language, got.Language)
		assert.Equal(t, first.Answers, got.Answers)
		assert.Equal(t, first.Attachments, got.Attachments)
		assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("append existing id is a no-op", func(t *testing.T) {
		changed := first
		changed.Answers = []session.Answer{{Step: script.StepName, Value: "Пётр"}}
		require.NoError(t, log.Append(ctx, changed))

		got, err := log.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Иван", got.Answers[0].Value)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := log.Get(ctx, "missing")
		assert.ErrorIs(t, err, record.ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		require.NoError(t, log.Append(ctx, second))
		require.NoError(t, log.Append(ctx, third))

		all, err := log.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, third.ID, all[0].ID)
		assert.Equal(t, second.ID, all[1].ID)
		assert.Equal(t, first.ID, all[2].ID)

		limited, err := log.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}
