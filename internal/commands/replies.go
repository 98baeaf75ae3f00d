package commands

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/utils/json/option"

	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/sheets"
)

// Discord limits.
const (
	maxContent    = 2000
	maxFieldValue = 1024
)

// botChannelPermissions are needed in the notification channel.
const botChannelPermissions = discord.PermissionViewChannel |
	discord.PermissionSendMessages |
	discord.PermissionEmbedLinks

func reply(content string) *api.InteractionResponseData {
	return &api.InteractionResponseData{
		Content:         option.NewNullableString(content),
		Flags:           discord.EphemeralMessage,
		AllowedMentions: &api.AllowedMentions{Parse: []api.AllowedMentionType{}},
	}
}

func replyEmbed(embed discord.Embed) *api.InteractionResponseData {
	return &api.InteractionResponseData{
		Embeds: &[]discord.Embed{embed},
		Flags:  discord.EphemeralMessage,
	}
}

func replyValidation(err error) *api.InteractionResponseData {
	var verr *guildconfig.ValidationError
	if errors.As(err, &verr) {
		return reply("Invalid reminder days: " + verr.Reason + ".")
	}
	return replyInternalError()
}

func replyNotConfigured() *api.InteractionResponseData {
	return reply("Bot hasn't been configured for this server yet! An administrator needs to run `/setup` first.")
}

func replyInternalError() *api.InteractionResponseData {
	return reply("This bot has encountered an internal error. This error has been logged.")
}

func requireGuild(ev *discord.InteractionEvent) *api.InteractionResponseData {
	if !ev.GuildID.IsValid() {
		return reply("This command can only be used in a server.")
	}
	return nil
}

// requireAdmin returns a reply if the sender may not run admin commands.
func (h *Handler) requireAdmin(ev *discord.InteractionEvent) *api.InteractionResponseData {
	if resp := requireGuild(ev); resp != nil {
		return resp
	}

	perms, err := h.Discord.Permissions(ev.ChannelID, ev.SenderID())
	if err != nil {
		slog.Warn(
			"Bot could not check the permissions of a user.",
			"guild_id", ev.GuildID,
			"user_id", ev.SenderID(),
			"err", err)
		return replyInternalError()
	}

	if !perms.Has(discord.PermissionAdministrator) {
		return reply("You need administrator permissions to use this command!")
	}

	return nil
}

func (h *Handler) requireConfigured(guildID discord.GuildID) *api.InteractionResponseData {
	if _, err := h.Store.Get(guildID); err != nil {
		if errors.Is(err, guildconfig.ErrNotConfigured) {
			return replyNotConfigured()
		}
		return h.replyStoreError(guildID, err)
	}
	return nil
}

func (h *Handler) requireBotCanPost(channelID discord.ChannelID) *api.InteractionResponseData {
	me, err := h.Discord.Me()
	if err != nil {
		slog.Warn("Bot could not look up its own user.", "err", err)
		return replyInternalError()
	}

	perms, err := h.Discord.Permissions(channelID, me.ID)
	if err != nil {
		slog.Warn(
			"Bot could not check its own permissions in a channel.",
			"channel_id", channelID,
			"err", err)
		return replyInternalError()
	}

	if !perms.Has(botChannelPermissions) {
		return reply("This bot needs the View Channel, Send Messages and Embed Links permissions in " +
			channelID.Mention() + ".")
	}

	return nil
}

func (h *Handler) replyFetchError(guildID discord.GuildID, spreadsheetID string, err error) *api.InteractionResponseData {
	slog.Info(
		"Bot could not fetch a spreadsheet for a command.",
		"guild_id", guildID,
		"spreadsheet_id", spreadsheetID,
		"err", err)
	return reply(fetchErrorMessage(err, h.ServiceAccount))
}

func fetchErrorMessage(err error, serviceAccount string) string {
	switch {
	case errors.Is(err, sheets.ErrNoAccess), errors.Is(err, sheets.ErrEmptyID):
		msg := "Failed to connect to Google Sheets. Please check your spreadsheet ID."
		if serviceAccount != "" {
			msg += " (try adding this email as a viewer of the sheet: " + serviceAccount + ")"
		}
		return msg
	default:
		return "Google Sheets is not responding right now. Please try again in a moment."
	}
}

func (h *Handler) replyStoreError(guildID discord.GuildID, err error) *api.InteractionResponseData {
	var verr *guildconfig.ValidationError
	if errors.As(err, &verr) {
		return replyValidation(err)
	}

	slog.Error(
		"Bot has failed to save the configuration of a guild.",
		"guild_id", guildID,
		"err", err)
	return replyInternalError()
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return "None"
	}
	return truncate(strings.Join(lines, "\n"), maxFieldValue)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
