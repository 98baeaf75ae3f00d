package commands

import (
	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
)

var adminOnly = discord.NewPermissions(discord.PermissionAdministrator)

const reminderDaysDescription = "Days before deadline to send reminders (up to 5 numbers, comma-separated, e.g. '7,3,1')"

// Commands lists every slash command the bot registers.
var Commands = []api.CreateCommandData{
	{
		Name:                     "setup",
		Description:              "Configure the hackathon bot for your server",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
		Options: discord.CommandOptions{
			&discord.ChannelOption{
				OptionName:   "notification_channel",
				Description:  "The channel where notifications should be sent",
				Required:     true,
				ChannelTypes: []discord.ChannelType{discord.GuildText, discord.GuildAnnouncement},
			},
			&discord.RoleOption{
				OptionName:  "hackathon_role",
				Description: "The role to ping for hackathon notifications",
				Required:    true,
			},
			&discord.StringOption{
				OptionName:  "spreadsheet_id",
				Description: "The ID of your Google Spreadsheet (defaults to the bot's spreadsheet)",
			},
			&discord.StringOption{
				OptionName:  "reminder_days",
				Description: reminderDaysDescription,
			},
		},
	},
	{
		Name:           "hackathons",
		Description:    "List all current hackathons",
		NoDMPermission: true,
	},
	{
		Name:                     "change_spreadsheet",
		Description:              "Change the Google Spreadsheet ID for hackathon tracking",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
		Options: discord.CommandOptions{
			&discord.StringOption{
				OptionName:  "spreadsheet_id",
				Description: "The new Google Spreadsheet ID to use",
				Required:    true,
			},
		},
	},
	{
		Name:                     "set_reminders",
		Description:              "Set custom reminder days for hackathon deadlines",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
		Options: discord.CommandOptions{
			&discord.StringOption{
				OptionName:  "reminder_days",
				Description: reminderDaysDescription,
				Required:    true,
			},
		},
	},
	{
		Name:                     "view_config",
		Description:              "View current bot configuration for this server",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
	},
	{
		Name:                     "force_check",
		Description:              "Force check for new hackathons (Admin only)",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
	},
	{
		Name:                     "debug_tracking",
		Description:              "Show current hackathon tracking state (Admin only)",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
	},
	{
		Name:                     "reset",
		Description:              "Remove this server's hackathon bot configuration (Admin only)",
		DefaultMemberPermissions: adminOnly,
		NoDMPermission:           true,
	},
}
