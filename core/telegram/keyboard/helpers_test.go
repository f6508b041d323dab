package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsNPerRow(t *testing.T) {
	buttons := []InlineBtn{
		{Text: "RU", Unique: "lang", Data: "ru"},
		{Text: "UZ", Unique: "lang", Data: "uz"},
		{Text: "EN", Unique: "lang", Data: "en"},
	}
	markup := InlineButtonsNPerRow(buttons, 2)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Len(t, markup.InlineKeyboard[0], 2)
	assert.Len(t, markup.InlineKeyboard[1], 1)

	first := markup.InlineKeyboard[0][0]
	assert.Equal(t, "RU", first.Text)
	assert.Equal(t, "lang", first.Unique)
	assert.Equal(t, "ru", first.Data)

	assert.Len(t, InlineButtonsNPerRow(buttons, 0).InlineKeyboard, 3)
}

func TestContactRequest(t *testing.T) {
	markup := ContactRequest("📱 Share")
	require.Len(t, markup.ReplyKeyboard, 1)
	require.Len(t, markup.ReplyKeyboard[0], 1)
	btn := markup.ReplyKeyboard[0][0]
	assert.Equal(t, "📱 Share", btn.Text)
	assert.True(t, btn.Contact)
	assert.True(t, markup.OneTimeKeyboard)
}

func TestRemoveKeyboard(t *testing.T) {
	assert.True(t, RemoveKeyboard().RemoveKeyboard)
}
