package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/sheets"
	"libdb.so/hackathon-bot/internal/tracker"
)

// botSettings holds the settings for the bot. Each field can be set in the
// YAML settings file and overridden by its environment variable.
type botSettings struct {
	// SpreadsheetID is the spreadsheet used by guilds that have not set
	// their own.
	SpreadsheetID string `yaml:"spreadsheet_id"`
	// ReminderDays is the default list of reminder offsets, e.g. "7,3,1".
	ReminderDays string `yaml:"reminder_days"`
	// CredentialsFile is the Google service account JSON file.
	CredentialsFile string `yaml:"credentials_file"`
	// SheetRange is the A1 range holding the hackathon rows.
	SheetRange string `yaml:"sheet_range"`
	// CheckSchedule is the cron schedule of the hackathon checks.
	CheckSchedule string `yaml:"check_schedule"`
	// Timezone defines which calendar day "today" is for reminders.
	Timezone string `yaml:"timezone"`
	// StateDirectory is where the bot keeps its databases.
	StateDirectory string `yaml:"state_directory"`
	// HTTPAddr is the address of the status endpoint. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	defaultReminderDays []int
	location            *time.Location
}

// settingsEnv maps each environment variable to the setting it overrides.
var settingsEnv = []struct {
	env   string
	field func(*botSettings) *string
}{
	{"SPREADSHEET_ID", func(s *botSettings) *string { return &s.SpreadsheetID }},
	{"DEADLINE_REMINDER_DAYS", func(s *botSettings) *string { return &s.ReminderDays }},
	{"GOOGLE_CREDENTIALS_FILE", func(s *botSettings) *string { return &s.CredentialsFile }},
	{"SHEET_RANGE", func(s *botSettings) *string { return &s.SheetRange }},
	{"CHECK_SCHEDULE", func(s *botSettings) *string { return &s.CheckSchedule }},
	{"TIMEZONE", func(s *botSettings) *string { return &s.Timezone }},
	{"STATE_DIRECTORY", func(s *botSettings) *string { return &s.StateDirectory }},
	{"HTTP_ADDR", func(s *botSettings) *string { return &s.HTTPAddr }},
}

func defaultSettings() botSettings {
	return botSettings{
		ReminderDays:    "7,3,1",
		CredentialsFile: "credentials.json",
		SheetRange:      sheets.DefaultRange,
		CheckSchedule:   tracker.DefaultSchedule,
		Timezone:        "UTC",
	}
}

// loadSettings reads the optional YAML file at path, applies the
// environment on top, and validates the result.
func loadSettings(path string, getenv func(string) string) (botSettings, error) {
	s := defaultSettings()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read settings file: %w", err)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return s, fmt.Errorf("parse settings file %q: %w", path, err)
		}
	}

	for _, e := range settingsEnv {
		if v := strings.TrimSpace(getenv(e.env)); v != "" {
			*e.field(&s) = v
		}
	}

	if err := s.validate(); err != nil {
		return s, err
	}

	if s.StateDirectory == "" {
		s.StateDirectory = defaultStateDirectory()
	}

	return s, nil
}

func (s *botSettings) validate() error {
	days, err := guildconfig.ParseReminderDays(s.ReminderDays)
	if err != nil {
		return fmt.Errorf("invalid $DEADLINE_REMINDER_DAYS: %w", err)
	}
	s.defaultReminderDays = days

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("invalid $TIMEZONE: %w", err)
	}
	s.location = loc

	if err := tracker.ValidateSchedule(s.CheckSchedule); err != nil {
		return fmt.Errorf("invalid $CHECK_SCHEDULE: %w", err)
	}

	return nil
}

func (s botSettings) defaults() guildconfig.Defaults {
	return guildconfig.Defaults{
		SpreadsheetID: s.SpreadsheetID,
		ReminderDays:  s.defaultReminderDays,
	}
}

func defaultStateDirectory() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		slog.Warn(
			"Bot could not get the user's config directory. It will use the current directory instead.",
			"err", err)
		userConfigDir = "."
	}
	return filepath.Join(userConfigDir, "hackathon-bot")
}
