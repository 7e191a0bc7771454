// Package commands describes bot commands for routing and the Telegram command menu.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Localized maps a language code to the menu description in that language.
	Localized map[string]string
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// DescriptionFor returns the description for lang, falling back to Description.
func (c Command) DescriptionFor(lang string) string {
	if d, ok := c.Localized[lang]; ok && d != "" {
		return d
	}
	return c.Description
}
