// Package guildconfig stores the per-guild configuration of the bot.
package guildconfig

import (
	"errors"
	"slices"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
)

var (
	// ErrNotConfigured is returned when a guild has not run /setup.
	ErrNotConfigured = errors.New("this server has not been configured yet")
	// ErrUnresolved is returned when neither the guild nor the process has a
	// spreadsheet ID.
	ErrUnresolved = errors.New("no spreadsheet ID is configured")
)

// Config is the configuration of a single guild.
type Config struct {
	GuildID               discord.GuildID
	SpreadsheetID         string
	NotificationChannelID discord.ChannelID
	HackathonRoleID       discord.RoleID
	// ReminderDays is nil if the guild uses the process default. An empty
	// non-nil slice disables reminders.
	ReminderDays []int
	UpdatedAt    time.Time
}

// Defaults holds the process-wide fallback values.
type Defaults struct {
	SpreadsheetID string
	ReminderDays  []int
}

// SpreadsheetIDOr returns the guild's spreadsheet ID, or the default one.
func (c Config) SpreadsheetIDOr(defaults Defaults) (string, error) {
	if c.SpreadsheetID != "" {
		return c.SpreadsheetID, nil
	}
	if defaults.SpreadsheetID != "" {
		return defaults.SpreadsheetID, nil
	}
	return "", ErrUnresolved
}

// ReminderDaysOr returns the guild's reminder days, or the default ones.
func (c Config) ReminderDaysOr(defaults Defaults) []int {
	if c.ReminderDays != nil {
		return c.ReminderDays
	}
	return defaults.ReminderDays
}

func (c Config) clone() Config {
	c.ReminderDays = slices.Clone(c.ReminderDays)
	return c
}
