package notify

import (
	"strings"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"

	"libdb.so/hackathon-bot/internal/hackathon"
)

// Placeholder is shown for every absent field.
const Placeholder = "N/A"

// EmbedColor is the accent color of every embed the bot sends.
const EmbedColor discord.Color = 0x00FF00

const displayDateLayout = "January 02, 2006"

// Discord limits.
const (
	maxFieldValue = 1024
	maxTitle      = 256
)

// HackathonEmbed renders h into an embed with the given title. Every column
// gets a field, absent ones showing Placeholder.
func HackathonEmbed(h hackathon.Hackathon, title string, now time.Time) discord.Embed {
	return discord.Embed{
		Title:     truncate(title, maxTitle),
		Color:     EmbedColor,
		Timestamp: discord.NewTimestamp(now),
		Fields: []discord.EmbedField{
			textField("Name", h.Name, true),
			textField("Website", h.Website, true),
			dateField("Start Date", h.DateStart),
			dateField("End Date", h.DateEnd),
			dateField("Deadline", h.Deadline),
			textField("Status", h.Status, true),
			textField("Place", h.Place, true),
			dateField("Respond By", h.RespondBy),
			textField("Notes", h.Notes, false),
		},
	}
}

func textField(name, value string, inline bool) discord.EmbedField {
	value = strings.TrimSpace(value)
	if value == "" {
		value = Placeholder
	}
	return discord.EmbedField{
		Name:   name,
		Value:  truncate(value, maxFieldValue),
		Inline: inline,
	}
}

func dateField(name string, d hackathon.Date) discord.EmbedField {
	return textField(name, d.Format(displayDateLayout), true)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
