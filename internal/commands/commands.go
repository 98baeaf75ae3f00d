// Package commands implements the bot's slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/api/cmdroute"
	"github.com/diamondburned/arikawa/v3/discord"

	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/notify"
	"libdb.so/hackathon-bot/internal/sheets"
	"libdb.so/hackathon-bot/internal/tracker"
)

// forceCheckTimeout bounds a /force_check cycle, which outlives the
// interaction that started it.
const forceCheckTimeout = 2 * time.Minute

// maxEmbedsPerMessage is Discord's limit.
const maxEmbedsPerMessage = 10

// Discord is the part of the Discord state the handlers need.
type Discord interface {
	Permissions(channelID discord.ChannelID, userID discord.UserID) (discord.Permissions, error)
	Channel(channelID discord.ChannelID) (*discord.Channel, error)
	Role(guildID discord.GuildID, roleID discord.RoleID) (*discord.Role, error)
	Me() (*discord.User, error)
}

// ConfigStore is the part of the guild config store the handlers need.
type ConfigStore interface {
	Get(guildID discord.GuildID) (guildconfig.Config, error)
	Upsert(guildID discord.GuildID, update func(*guildconfig.Config)) (guildconfig.Config, error)
	Delete(guildID discord.GuildID) error
	ResolveSpreadsheetID(guildID discord.GuildID) (string, error)
	Defaults() guildconfig.Defaults
}

// Checker runs detection cycles on demand.
type Checker interface {
	Run(ctx context.Context) (*tracker.Report, error)
	Snapshot(spreadsheetID string) tracker.Snapshot
}

// Handler holds the dependencies of every command.
type Handler struct {
	Discord Discord
	Store   ConfigStore
	Fetcher sheets.Fetcher
	Checker Checker
	Sender  notify.Sender

	// ServiceAccount is the email of the Google service account, shown to
	// admins when the bot cannot open their spreadsheet. Optional.
	ServiceAccount string

	Now func() time.Time
}

// Register adds every command in Commands to r.
func (h *Handler) Register(r *cmdroute.Router) {
	r.Use(logCommands)
	r.AddFunc("setup", h.cmdSetup)
	r.AddFunc("hackathons", h.cmdHackathons)
	r.AddFunc("change_spreadsheet", h.cmdChangeSpreadsheet)
	r.AddFunc("set_reminders", h.cmdSetReminders)
	r.AddFunc("view_config", h.cmdViewConfig)
	r.AddFunc("force_check", h.cmdForceCheck)
	r.AddFunc("debug_tracking", h.cmdDebugTracking)
	r.AddFunc("reset", h.cmdReset)
}

func logCommands(next cmdroute.InteractionHandler) cmdroute.InteractionHandler {
	return cmdroute.InteractionHandlerFunc(func(ctx context.Context, ev *discord.InteractionEvent) *api.InteractionResponse {
		if cmd, ok := ev.Data.(*discord.CommandInteraction); ok {
			slog.Info(
				"This bot has received a command.",
				"guild_id", ev.GuildID,
				"channel_id", ev.ChannelID,
				"user_id", ev.SenderID(),
				"command", cmd.Name)
		}
		return next.HandleInteraction(ctx, ev)
	})
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) cmdSetup(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	channelID, err := snowflakeOption(data, "notification_channel")
	if err != nil {
		return reply("Please pick a notification channel.")
	}
	roleID, err := snowflakeOption(data, "hackathon_role")
	if err != nil {
		return reply("Please pick a hackathon role.")
	}

	spreadsheetID := strings.TrimSpace(data.Options.Find("spreadsheet_id").String())

	// nil keeps the process default.
	var reminderDays []int
	if raw := strings.TrimSpace(data.Options.Find("reminder_days").String()); raw != "" {
		reminderDays, err = guildconfig.ParseReminderDays(raw)
		if err != nil {
			return replyValidation(err)
		}
	}

	target := spreadsheetID
	if target == "" {
		target = h.Store.Defaults().SpreadsheetID
	}
	if target == "" {
		return reply("This bot has no default spreadsheet. Please provide a `spreadsheet_id`.")
	}

	channel, err := h.Discord.Channel(discord.ChannelID(channelID))
	if err != nil || channel.GuildID != guildID {
		return reply("That notification channel could not be found in this server.")
	}
	if channel.Type != discord.GuildText && channel.Type != discord.GuildAnnouncement {
		return reply("The notification channel must be a text or announcement channel.")
	}

	role, err := h.Discord.Role(guildID, discord.RoleID(roleID))
	if err != nil {
		return reply("That hackathon role could not be found in this server.")
	}

	if resp := h.requireBotCanPost(channel.ID); resp != nil {
		return resp
	}

	if _, err := h.Fetcher.Fetch(ctx, target); err != nil {
		return h.replyFetchError(guildID, target, err)
	}

	cfg, err := h.Store.Upsert(guildID, func(cfg *guildconfig.Config) {
		cfg.SpreadsheetID = spreadsheetID
		cfg.NotificationChannelID = channel.ID
		cfg.HackathonRoleID = role.ID
		cfg.ReminderDays = reminderDays
	})
	if err != nil {
		return h.replyStoreError(guildID, err)
	}

	days := cfg.ReminderDaysOr(h.Store.Defaults())
	return reply(fmt.Sprintf(
		"Configuration complete!\n"+
			"• Notifications will be sent to %s\n"+
			"• %s will be pinged for updates\n"+
			"• %s",
		channel.ID.Mention(), role.ID.Mention(), describeReminders(days)))
}

func (h *Handler) cmdHackathons(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := requireGuild(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	spreadsheetID, err := h.Store.ResolveSpreadsheetID(guildID)
	if err != nil {
		return replyNotConfigured()
	}

	listing, err := h.Fetcher.Fetch(ctx, spreadsheetID)
	if err != nil {
		return h.replyFetchError(guildID, spreadsheetID, err)
	}
	if len(listing) == 0 {
		return reply("No hackathons found!")
	}

	now := h.now()
	embeds := make([]discord.Embed, len(listing))
	for i, hack := range listing {
		embeds[i] = notify.HackathonEmbed(hack, "Hackathon Information", now)
	}

	for batch := range slices.Chunk(embeds, maxEmbedsPerMessage) {
		err := h.Sender.Send(ctx, data.Event.ChannelID, api.SendMessageData{
			Embeds:          batch,
			AllowedMentions: &api.AllowedMentions{Parse: []api.AllowedMentionType{}},
		})
		if err != nil {
			slog.Error(
				"Bot has failed to post the hackathon listing.",
				"guild_id", guildID,
				"channel_id", data.Event.ChannelID,
				"err", err)
			return reply("This bot could not post the listing in this channel. Please check its permissions.")
		}
	}

	return reply(fmt.Sprintf("Found %d hackathons.", len(listing)))
}

func (h *Handler) cmdChangeSpreadsheet(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	if resp := h.requireConfigured(guildID); resp != nil {
		return resp
	}

	spreadsheetID := strings.TrimSpace(data.Options.Find("spreadsheet_id").String())
	if spreadsheetID == "" {
		return reply("Please provide a spreadsheet ID.")
	}

	if _, err := h.Fetcher.Fetch(ctx, spreadsheetID); err != nil {
		return h.replyFetchError(guildID, spreadsheetID, err)
	}

	if _, err := h.Store.Upsert(guildID, func(cfg *guildconfig.Config) {
		cfg.SpreadsheetID = spreadsheetID
	}); err != nil {
		return h.replyStoreError(guildID, err)
	}

	return reply("Successfully updated the spreadsheet ID!\n" +
		"The bot will now track hackathons from the new spreadsheet.")
}

func (h *Handler) cmdSetReminders(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	if resp := h.requireConfigured(guildID); resp != nil {
		return resp
	}

	days, err := guildconfig.ParseReminderDays(data.Options.Find("reminder_days").String())
	if err != nil {
		return replyValidation(err)
	}

	if _, err := h.Store.Upsert(guildID, func(cfg *guildconfig.Config) {
		cfg.ReminderDays = days
	}); err != nil {
		return h.replyStoreError(guildID, err)
	}

	return reply("Reminder days updated!\n" + describeReminders(days) + ".")
}

func (h *Handler) cmdViewConfig(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	cfg, err := h.Store.Get(guildID)
	if err != nil {
		if errors.Is(err, guildconfig.ErrNotConfigured) {
			return replyNotConfigured()
		}
		return h.replyStoreError(guildID, err)
	}

	defaults := h.Store.Defaults()

	spreadsheet := cfg.SpreadsheetID
	if spreadsheet == "" {
		spreadsheet = "Not set"
		if defaults.SpreadsheetID != "" {
			spreadsheet = defaults.SpreadsheetID + " (default)"
		}
	}

	channel := "Not found"
	if ch, err := h.Discord.Channel(cfg.NotificationChannelID); err == nil && ch.GuildID == guildID {
		channel = ch.ID.Mention()
	}

	role := "Not found"
	if !cfg.HackathonRoleID.IsValid() {
		role = "None"
	} else if r, err := h.Discord.Role(guildID, cfg.HackathonRoleID); err == nil {
		role = r.ID.Mention()
	}

	days := guildconfig.FormatReminderDays(cfg.ReminderDaysOr(defaults))
	if cfg.ReminderDays == nil {
		days += " (default)"
	}

	return replyEmbed(discord.Embed{
		Title: "Bot Configuration",
		Color: notify.EmbedColor,
		Fields: []discord.EmbedField{
			{Name: "Spreadsheet ID", Value: spreadsheet},
			{Name: "Notification Channel", Value: channel, Inline: true},
			{Name: "Hackathon Role", Value: role, Inline: true},
			{Name: "Reminder Days", Value: days},
		},
	})
}

func (h *Handler) cmdForceCheck(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forceCheckTimeout)
	defer cancel()

	report, err := h.Checker.Run(ctx)
	if err != nil {
		if errors.Is(err, tracker.ErrCycleRunning) {
			return reply("A check is already running. Please try again in a moment.")
		}
		slog.Error(
			"Bot has failed to run a forced check.",
			"guild_id", guildID,
			"err", err)
		return replyInternalError()
	}

	spreadsheetID, err := h.Store.ResolveSpreadsheetID(guildID)
	if err != nil {
		return replyNotConfigured()
	}

	for _, result := range report.Spreadsheets {
		if result.SpreadsheetID == spreadsheetID && result.Err != nil {
			return h.replyFetchError(guildID, spreadsheetID, result.Err)
		}
	}

	names := trackedNames(h.Checker.Snapshot(spreadsheetID))
	tracked := "None"
	if len(names) > 0 {
		tracked = strings.Join(names, ", ")
	}

	return reply(truncate(fmt.Sprintf(
		"Check complete!\n"+
			"Now tracking %d hackathons.\n"+
			"Tracked hackathons: %s",
		len(names), tracked), maxContent))
}

func (h *Handler) cmdDebugTracking(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	spreadsheetID, err := h.Store.ResolveSpreadsheetID(guildID)
	if err != nil {
		return replyNotConfigured()
	}

	snapshot := h.Checker.Snapshot(spreadsheetID)

	embed := discord.Embed{
		Title:  "Hackathon Tracking Debug Info",
		Color:  notify.EmbedColor,
		Footer: &discord.EmbedFooter{Text: fmt.Sprintf("Guild ID: %d", guildID)},
		Fields: []discord.EmbedField{
			{Name: "Currently Tracked Hackathons", Value: joinLines(trackedNames(snapshot))},
		},
	}
	if snapshot.State == tracker.HasBaseline {
		embed.Description = fmt.Sprintf("Last fetched <t:%d:R>.", snapshot.FetchedAt.Unix())
	} else {
		embed.Description = "This spreadsheet has not been checked yet."
	}

	listing, err := h.Fetcher.Fetch(ctx, spreadsheetID)
	if err != nil {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  "Current Hackathons in Sheet",
			Value: truncate(fetchErrorMessage(err, h.ServiceAccount), maxFieldValue),
		})
		return replyEmbed(embed)
	}

	var current, untracked []string
	for _, hack := range listing {
		current = append(current, hack.Name)
		if !snapshot.Has(hack.Key()) {
			untracked = append(untracked, hack.Name)
		}
	}
	slices.Sort(current)
	slices.Sort(untracked)

	embed.Fields = append(embed.Fields, discord.EmbedField{
		Name:  "Current Hackathons in Sheet",
		Value: joinLines(current),
	})
	if len(untracked) > 0 {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  "New Untracked Hackathons",
			Value: joinLines(untracked),
		})
	}

	return replyEmbed(embed)
}

func (h *Handler) cmdReset(ctx context.Context, data cmdroute.CommandData) *api.InteractionResponseData {
	if resp := h.requireAdmin(data.Event); resp != nil {
		return resp
	}
	guildID := data.Event.GuildID

	if err := h.Store.Delete(guildID); err != nil {
		if errors.Is(err, guildconfig.ErrNotConfigured) {
			return replyNotConfigured()
		}
		return h.replyStoreError(guildID, err)
	}

	return reply("The configuration of this server has been removed. Run `/setup` to configure the bot again.")
}

func trackedNames(snapshot tracker.Snapshot) []string {
	names := make([]string, 0, len(snapshot.Hackathons))
	for _, hack := range snapshot.Hackathons {
		names = append(names, hack.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func describeReminders(days []int) string {
	if len(days) == 0 {
		return "No deadline reminders will be sent"
	}
	return "Reminders will be sent " + guildconfig.FormatReminderDays(days) + " days before deadlines"
}

func snowflakeOption(data cmdroute.CommandData, name string) (discord.Snowflake, error) {
	sf, err := data.Options.Find(name).SnowflakeValue()
	if err != nil {
		return 0, err
	}
	if !sf.IsValid() {
		return 0, fmt.Errorf("option %q is empty", name)
	}
	return sf, nil
}
