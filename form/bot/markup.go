package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/telegram/keyboard"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/machine"
	"github.com/m3rciful/formbot/form/script"
)

// LanguageCallback is the callback key of the language buttons.
const LanguageCallback = "lang"

// LanguageKeyboard offers one inline button per supported language.
func LanguageKeyboard() *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(lang.Supported))
	for _, l := range lang.Supported {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   script.LanguageLabels[l],
			Unique: LanguageCallback,
			Data:   l.String(),
		})
	}
	return keyboard.InlineButtonsNPerRow(buttons, len(buttons))
}

// Markup maps a reply keyboard to Telegram markup. Nil leaves the chat
// keyboard untouched.
func Markup(r machine.Reply) *tele.ReplyMarkup {
	switch r.Keyboard {
	case machine.KeyboardLanguage:
		return LanguageKeyboard()
	case machine.KeyboardContact:
		return keyboard.ContactRequest(r.ContactLabel)
	case machine.KeyboardRemove:
		return keyboard.RemoveKeyboard()
	default:
		return nil
	}
}
