package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Localized overrides Description in the command menu of users whose
	// Telegram client uses the given language code.
	Localized map[string]string
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// DescriptionFor returns the menu text for languageCode.
func (c Command) DescriptionFor(languageCode string) string {
	if d, ok := c.Localized[languageCode]; ok && d != "" {
		return d
	}
	return c.Description
}

// Listed reports whether the command belongs in the public menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}
