// Package notify formats and delivers hackathon notifications to Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/utils/httputil"

	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/hackathon"
)

// DefaultSendTimeout bounds a single message dispatch.
const DefaultSendTimeout = 10 * time.Second

// Kind is the kind of a notification.
type Kind int

const (
	NewHackathon Kind = iota + 1
	DeadlineReminder
)

func (k Kind) String() string {
	switch k {
	case NewHackathon:
		return "new_hackathon"
	case DeadlineReminder:
		return "deadline_reminder"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Task is a single notification to deliver to a guild.
type Task struct {
	Kind      Kind
	Hackathon hackathon.Hackathon
	// Offset is the number of days left until the deadline. It is only set
	// for DeadlineReminder.
	Offset int
}

// Title returns the embed title for the task.
func (t Task) Title() string {
	switch t.Kind {
	case DeadlineReminder:
		return fmt.Sprintf("⚠️ Deadline in %s!", days(t.Offset))
	default:
		return "New Hackathon Alert! 🎉"
	}
}

func (t Task) headline() string {
	switch t.Kind {
	case DeadlineReminder:
		return "Deadline reminder!"
	default:
		return "A new hackathon has been added!"
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

var (
	// ErrNoChannel is returned when the guild has no notification channel.
	ErrNoChannel = errors.New("no notification channel configured")
	// ErrTargetGone is returned when the notification channel no longer
	// exists.
	ErrTargetGone = errors.New("notification channel not found")
	// ErrForbidden is returned when the bot may not post in the channel.
	ErrForbidden = errors.New("missing permission to post in the notification channel")
)

// NotifyError is returned when a notification could not be delivered.
type NotifyError struct {
	GuildID   discord.GuildID
	ChannelID discord.ChannelID
	Err       error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify guild %v in channel %v: %v", e.GuildID, e.ChannelID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Sender sends a message into a channel.
type Sender interface {
	Send(ctx context.Context, channelID discord.ChannelID, data api.SendMessageData) error
}

// DiscordSender is a Sender over the Discord REST API.
type DiscordSender struct {
	Client *api.Client
}

// Send implements Sender.
func (s DiscordSender) Send(ctx context.Context, channelID discord.ChannelID, data api.SendMessageData) error {
	_, err := s.Client.WithContext(ctx).SendMessageComplex(channelID, data)
	return err
}

// Notifier delivers Tasks to guilds.
type Notifier struct {
	sender  Sender
	timeout time.Duration
	now     func() time.Time
}

// New creates a Notifier. A zero timeout uses DefaultSendTimeout.
func New(sender Sender, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Notifier{
		sender:  sender,
		timeout: timeout,
		now:     time.Now,
	}
}

// Notify delivers task into cfg's notification channel. Failures are
// returned as *NotifyError.
func (n *Notifier) Notify(ctx context.Context, cfg guildconfig.Config, task Task) error {
	if !cfg.NotificationChannelID.IsValid() {
		return &NotifyError{GuildID: cfg.GuildID, Err: ErrNoChannel}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, cfg.NotificationChannelID, Message(cfg, task, n.now())); err != nil {
		return &NotifyError{
			GuildID:   cfg.GuildID,
			ChannelID: cfg.NotificationChannelID,
			Err:       classify(err),
		}
	}

	return nil
}

// Message builds the message for task. The role is mentioned only if the
// guild has one configured, and the message is not allowed to ping anything
// else.
func Message(cfg guildconfig.Config, task Task, now time.Time) api.SendMessageData {
	content := task.headline()
	mentions := &api.AllowedMentions{
		Parse: []api.AllowedMentionType{},
	}

	if cfg.HackathonRoleID.IsValid() {
		content = cfg.HackathonRoleID.Mention() + " " + content
		mentions.Roles = []discord.RoleID{cfg.HackathonRoleID}
	}

	return api.SendMessageData{
		Content:         content,
		Embeds:          []discord.Embed{HackathonEmbed(task.Hackathon, task.Title(), now)},
		AllowedMentions: mentions,
	}
}

func classify(err error) error {
	var httpErr *httputil.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrTargetGone, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}
	}
	return err
}
