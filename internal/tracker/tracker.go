// Package tracker polls hackathon spreadsheets, detects new listings and
// upcoming deadlines, and hands the resulting notifications to a Notifier.
package tracker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/hackathon"
	"libdb.so/hackathon-bot/internal/notify"
	"libdb.so/hackathon-bot/internal/sheets"
)

// ErrCycleRunning is returned by Run if another cycle has not finished yet.
var ErrCycleRunning = errors.New("a hackathon check is already running")

// ConfigSource provides the guild configs for a cycle.
type ConfigSource interface {
	All() []guildconfig.Config
	Defaults() guildconfig.Defaults
}

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, cfg guildconfig.Config, task notify.Task) error
}

// Job is a notification task bound to the guild config captured at the
// start of the cycle.
type Job struct {
	Config guildconfig.Config
	Task   notify.Task
}

// SpreadsheetResult is the outcome of one spreadsheet in a cycle.
type SpreadsheetResult struct {
	SpreadsheetID string
	GuildIDs      []discord.GuildID
	Rows          int
	New           int
	FirstFetch    bool
	Err           error
}

// SkippedGuild is a guild that could not take part in a cycle.
type SkippedGuild struct {
	GuildID discord.GuildID
	Err     error
}

// Report describes a finished cycle.
type Report struct {
	CycleID      string
	Today        hackathon.Date
	StartedAt    time.Time
	FinishedAt   time.Time
	Spreadsheets []SpreadsheetResult
	Skipped      []SkippedGuild

	Jobs   int
	Sent   int
	Failed int
}

// Opts configures a Tracker.
type Opts struct {
	// Location defines which calendar day "today" is. Defaults to UTC.
	Location *time.Location
	// MaxConcurrentFetches bounds how many spreadsheets are fetched at once.
	// Defaults to 4.
	MaxConcurrentFetches int
	// Now overrides the clock.
	Now func() time.Time
}

// Tracker runs detection cycles.
type Tracker struct {
	configs  ConfigSource
	fetcher  sheets.Fetcher
	notifier Notifier
	ledger   Ledger
	opts     Opts

	snapshots *snapshots
	running   sync.Mutex

	lastMu sync.RWMutex
	last   *Report
}

// New creates a Tracker.
func New(configs ConfigSource, fetcher sheets.Fetcher, notifier Notifier, ledger Ledger, opts Opts) *Tracker {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxConcurrentFetches <= 0 {
		opts.MaxConcurrentFetches = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if ledger == nil {
		ledger = NewMemoryLedger()
	}

	return &Tracker{
		configs:   configs,
		fetcher:   fetcher,
		notifier:  notifier,
		ledger:    ledger,
		opts:      opts,
		snapshots: newSnapshots(),
	}
}

// Today returns the current calendar day in the tracker's location.
func (t *Tracker) Today() hackathon.Date {
	return hackathon.DateOf(t.opts.Now().In(t.opts.Location))
}

// Snapshot returns the last listing fetched for the spreadsheet.
func (t *Tracker) Snapshot(spreadsheetID string) Snapshot {
	return t.snapshots.get(spreadsheetID)
}

// LastReport returns the report of the last finished cycle, or nil.
func (t *Tracker) LastReport() *Report {
	t.lastMu.RLock()
	defer t.lastMu.RUnlock()
	return t.last
}

// Run runs a full cycle for today: detection, then delivery of every
// notification. Delivery failures are logged and counted in the report. If
// a cycle is already running, Run returns ErrCycleRunning immediately.
func (t *Tracker) Run(ctx context.Context) (*Report, error) {
	if !t.running.TryLock() {
		return nil, ErrCycleRunning
	}
	defer t.running.Unlock()

	report, jobs := t.Detect(ctx, t.Today())
	log := slog.With("cycle_id", report.CycleID)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			log.Warn(
				"Bot stopped delivering notifications because it is shutting down.",
				"remaining", report.Jobs-report.Sent-report.Failed)
			break
		}

		if err := t.notifier.Notify(ctx, job.Config, job.Task); err != nil {
			report.Failed++
			log.Error(
				"Bot has failed to deliver a notification.",
				"guild_id", job.Config.GuildID,
				"channel_id", job.Config.NotificationChannelID,
				"kind", job.Task.Kind,
				"hackathon", job.Task.Hackathon.Name,
				"err", err)
			continue
		}

		report.Sent++

		if job.Task.Kind == notify.DeadlineReminder {
			key := reminderKey(job)
			if err := t.ledger.MarkSent(key, t.opts.Now()); err != nil {
				log.Warn(
					"Bot could not record a sent reminder. It may be sent again.",
					"reminder", key.String(),
					"err", err)
			}
		}
	}

	report.FinishedAt = t.opts.Now()
	t.setLast(report)

	log.Info(
		"Bot has finished checking for hackathons.",
		"spreadsheets", len(report.Spreadsheets),
		"skipped_guilds", len(report.Skipped),
		"jobs", report.Jobs,
		"sent", report.Sent,
		"failed", report.Failed,
		"took", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// Detect fetches every configured spreadsheet once, updates its snapshot,
// and returns the notifications that should be sent for the given day. It
// does not deliver anything.
func (t *Tracker) Detect(ctx context.Context, today hackathon.Date) (*Report, []Job) {
	report := &Report{
		CycleID:   uuid.NewString(),
		Today:     today,
		StartedAt: t.opts.Now(),
	}
	log := slog.With("cycle_id", report.CycleID)

	log.Debug("Bot is checking for hackathons.", "today", today)

	groups := t.group(log, report)

	results := make([]SpreadsheetResult, len(groups))
	listings := make([][]hackathon.Hackathon, len(groups))
	added := make([][]hackathon.Hackathon, len(groups))

	var errg errgroup.Group
	errg.SetLimit(t.opts.MaxConcurrentFetches)

	for i, g := range groups {
		results[i] = SpreadsheetResult{
			SpreadsheetID: g.spreadsheetID,
			GuildIDs:      g.guildIDs(),
		}

		errg.Go(func() error {
			listing, err := t.fetcher.Fetch(ctx, g.spreadsheetID)
			if err != nil {
				results[i].Err = err
				return nil
			}

			listings[i] = listing
			added[i], results[i].FirstFetch = t.snapshots.replace(g.spreadsheetID, listing, t.opts.Now())
			results[i].Rows = len(listing)
			results[i].New = len(added[i])
			return nil
		})
	}

	errg.Wait()

	var jobs []Job
	for i, g := range groups {
		result := results[i]
		report.Spreadsheets = append(report.Spreadsheets, result)

		if result.Err != nil {
			for _, cfg := range g.configs {
				log.Error(
					"Bot could not fetch the spreadsheet of a guild.",
					"guild_id", cfg.GuildID,
					"spreadsheet_id", g.spreadsheetID,
					"err", result.Err)
			}
			continue
		}

		if result.New > 0 {
			log.Info(
				"Bot has found new hackathons.",
				"spreadsheet_id", g.spreadsheetID,
				"new", result.New,
				"rows", result.Rows,
				"first_fetch", result.FirstFetch)
		}

		for _, cfg := range g.configs {
			for _, h := range added[i] {
				jobs = append(jobs, Job{
					Config: cfg,
					Task:   notify.Task{Kind: notify.NewHackathon, Hackathon: h},
				})
			}
		}

		jobs = append(jobs, t.reminders(log, g, listings[i], today)...)
	}

	report.Jobs = len(jobs)
	return report, jobs
}

func (t *Tracker) reminders(log *slog.Logger, g group, listing []hackathon.Hackathon, today hackathon.Date) []Job {
	var jobs []Job
	// A row repeated within the listing must not be reminded twice.
	emitted := make(map[ReminderKey]struct{})

	for _, h := range listing {
		if !h.Deadline.Valid() {
			continue
		}

		daysLeft := h.Deadline.DaysFrom(today)

		for _, cfg := range g.configs {
			if !slices.Contains(cfg.ReminderDays, daysLeft) {
				continue
			}

			job := Job{
				Config: cfg,
				Task: notify.Task{
					Kind:      notify.DeadlineReminder,
					Hackathon: h,
					Offset:    daysLeft,
				},
			}

			key := reminderKey(job)
			if _, ok := emitted[key]; ok {
				continue
			}
			emitted[key] = struct{}{}

			sent, err := t.ledger.Sent(key)
			if err != nil {
				log.Warn(
					"Bot could not check whether a reminder was already sent. It will send it anyway.",
					"reminder", key.String(),
					"err", err)
			}
			if sent {
				continue
			}

			jobs = append(jobs, job)
		}
	}

	return jobs
}

type group struct {
	spreadsheetID string
	configs       []guildconfig.Config
}

func (g group) guildIDs() []discord.GuildID {
	ids := make([]discord.GuildID, len(g.configs))
	for i, cfg := range g.configs {
		ids[i] = cfg.GuildID
	}
	return ids
}

// group captures the guild configs and groups them by resolved spreadsheet
// ID, ordered by spreadsheet ID. Each config has its reminder days resolved.
func (t *Tracker) group(log *slog.Logger, report *Report) []group {
	defaults := t.configs.Defaults()
	byID := make(map[string]int)

	var groups []group
	for _, cfg := range t.configs.All() {
		id, err := cfg.SpreadsheetIDOr(defaults)
		if err == nil && !cfg.NotificationChannelID.IsValid() {
			err = notify.ErrNoChannel
		}
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedGuild{GuildID: cfg.GuildID, Err: err})
			log.Warn(
				"Bot is skipping a guild that is not fully configured.",
				"guild_id", cfg.GuildID,
				"err", err)
			continue
		}

		cfg.ReminderDays = cfg.ReminderDaysOr(defaults)

		i, ok := byID[id]
		if !ok {
			i = len(groups)
			byID[id] = i
			groups = append(groups, group{spreadsheetID: id})
		}
		groups[i].configs = append(groups[i].configs, cfg)
	}

	slices.SortFunc(groups, func(a, b group) int {
		return cmp.Compare(a.spreadsheetID, b.spreadsheetID)
	})

	return groups
}

func (t *Tracker) setLast(report *Report) {
	t.lastMu.Lock()
	t.last = report
	t.lastMu.Unlock()
}

func reminderKey(job Job) ReminderKey {
	return ReminderKey{
		GuildID:   job.Config.GuildID,
		Hackathon: job.Task.Hackathon.Key(),
		Offset:    job.Task.Offset,
	}
}

// String formats the result for logs and status output.
func (r SpreadsheetResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.SpreadsheetID, r.Err)
	}
	return fmt.Sprintf("%s: %d rows, %d new", r.SpreadsheetID, r.Rows, r.New)
}
