// Package commands describes slash commands registered with the bot.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its handler and menu metadata.
// AdminOnly commands are hidden from the menu and guarded by the admin check.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases match text typed without the menu, with or without a slash.
	Aliases []string
}

// Listed reports whether the command belongs in the public menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}

// Typeable reports whether plain text may trigger the command.
func (c Command) Typeable() bool {
	return c.Handler != nil && !c.AdminOnly
}
