package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libdb.so/hackathon-bot/internal/guildconfig"
	"libdb.so/hackathon-bot/internal/hackathon"
	"libdb.so/hackathon-bot/internal/notify"
	"libdb.so/hackathon-bot/internal/sheets"
)

type fakeConfigs struct {
	configs  []guildconfig.Config
	defaults guildconfig.Defaults
}

func (f *fakeConfigs) All() []guildconfig.Config      { return f.configs }
func (f *fakeConfigs) Defaults() guildconfig.Defaults { return f.defaults }

type fakeFetcher struct {
	mu       sync.Mutex
	listings map[string][]hackathon.Hackathon
	errs     map[string]error
	calls    map[string]int

	// If block is set, Fetch signals started and waits for block to close.
	block   chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		listings: make(map[string][]hackathon.Hackathon),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) ([]hackathon.Hackathon, error) {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.listings[id], nil
}

type delivered struct {
	GuildID discord.GuildID
	Task    notify.Task
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []delivered
	fail map[discord.GuildID]error
}

func (n *fakeNotifier) Notify(ctx context.Context, cfg guildconfig.Config, task notify.Task) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.fail[cfg.GuildID]; err != nil {
		return err
	}
	n.sent = append(n.sent, delivered{cfg.GuildID, task})
	return nil
}

func (n *fakeNotifier) reset() []delivered {
	n.mu.Lock()
	defer n.mu.Unlock()

	sent := n.sent
	n.sent = nil
	return sent
}

var today = hackathon.NewDate(2026, time.October, 14)

func h(name string, deadline hackathon.Date) hackathon.Hackathon {
	return hackathon.Hackathon{Name: name, Deadline: deadline}
}

func countKind(jobs []Job, kind notify.Kind) int {
	var n int
	for _, job := range jobs {
		if job.Task.Kind == kind {
			n++
		}
	}
	return n
}

func guild(id discord.GuildID, sheet string, days ...int) guildconfig.Config {
	return guildconfig.Config{
		GuildID:               id,
		SpreadsheetID:         sheet,
		NotificationChannelID: discord.ChannelID(id * 10),
		ReminderDays:          days,
	}
}

func TestDetectFirstRunIsAllNew(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{
		h("HackA", hackathon.Date{}),
		h("HackB", hackathon.Date{}),
		h("HackC", hackathon.Date{}),
	}

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X")}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	assert.Equal(t, NoBaseline, tr.Snapshot("X").State)

	report, jobs := tr.Detect(context.Background(), today)
	assert.Equal(t, 3, countKind(jobs, notify.NewHackathon))
	require.Len(t, report.Spreadsheets, 1)
	assert.True(t, report.Spreadsheets[0].FirstFetch)
	assert.Equal(t, 3, report.Spreadsheets[0].New)

	snap := tr.Snapshot("X")
	assert.Equal(t, HasBaseline, snap.State)
	assert.Len(t, snap.Hackathons, 3)

	// Nothing changed, nothing is new.
	report, jobs = tr.Detect(context.Background(), today)
	assert.Zero(t, countKind(jobs, notify.NewHackathon))
	assert.False(t, report.Spreadsheets[0].FirstFetch)

	// One row added.
	fetcher.listings["X"] = append(fetcher.listings["X"], h("HackD", hackathon.Date{}))
	_, jobs = tr.Detect(context.Background(), today)
	require.Equal(t, 1, countKind(jobs, notify.NewHackathon))
	assert.Equal(t, "HackD", jobs[0].Task.Hackathon.Name)
}

func TestDetectIdentityIncludesDeadline(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{h("HackA", today.AddDays(30))}

	tr := New(&fakeConfigs{configs: []guildconfig.Config{guild(1, "X")}}, fetcher, &fakeNotifier{}, nil, Opts{})
	tr.Detect(context.Background(), today)

	// Same name, next edition.
	fetcher.listings["X"] = []hackathon.Hackathon{h("HackA", today.AddDays(395))}
	_, jobs := tr.Detect(context.Background(), today)
	assert.Equal(t, 1, countKind(jobs, notify.NewHackathon))
}

func TestDetectSharedSpreadsheetFetchedOnce(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["shared"] = []hackathon.Hackathon{h("HackA", hackathon.Date{})}

	configs := &fakeConfigs{
		configs: []guildconfig.Config{
			guild(1, "shared"),
			guild(2, ""), // uses the default
		},
		defaults: guildconfig.Defaults{SpreadsheetID: "shared"},
	}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	report, jobs := tr.Detect(context.Background(), today)
	assert.Equal(t, 1, fetcher.calls["shared"])
	require.Len(t, report.Spreadsheets, 1)
	assert.Equal(t, []discord.GuildID{1, 2}, report.Spreadsheets[0].GuildIDs)

	// Each guild still gets its own notification.
	require.Len(t, jobs, 2)
	assert.Equal(t, discord.GuildID(1), jobs[0].Config.GuildID)
	assert.Equal(t, discord.GuildID(2), jobs[1].Config.GuildID)
}

func TestDetectSkipsUnresolvedGuilds(t *testing.T) {
	fetcher := newFakeFetcher()
	noChannel := guild(3, "X")
	noChannel.NotificationChannelID = 0

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, ""), noChannel}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	report, jobs := tr.Detect(context.Background(), today)
	assert.Empty(t, jobs)
	assert.Empty(t, report.Spreadsheets)
	require.Len(t, report.Skipped, 2)
	assert.ErrorIs(t, report.Skipped[0].Err, guildconfig.ErrUnresolved)
	assert.ErrorIs(t, report.Skipped[1].Err, notify.ErrNoChannel)
	assert.Empty(t, fetcher.calls)
}

func TestDetectFetchFailureIsIsolated(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.errs["A"] = &sheets.FetchError{SpreadsheetID: "A", Kind: sheets.ErrUnavailable, Err: errors.New("boom")}
	fetcher.listings["B"] = []hackathon.Hackathon{h("HackB", hackathon.Date{})}

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "A"), guild(2, "B")}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	report, jobs := tr.Detect(context.Background(), today)
	require.Len(t, jobs, 1)
	assert.Equal(t, discord.GuildID(2), jobs[0].Config.GuildID)
	assert.Equal(t, "HackB", jobs[0].Task.Hackathon.Name)

	require.Len(t, report.Spreadsheets, 2)
	assert.ErrorIs(t, report.Spreadsheets[0].Err, sheets.ErrUnavailable)
	assert.NoError(t, report.Spreadsheets[1].Err)

	// A failed fetch leaves the baseline untouched.
	assert.Equal(t, NoBaseline, tr.Snapshot("A").State)
}

func TestDetectReminders(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{
		h("HackA", today.AddDays(3)),
		h("HackB", today.AddDays(7)),
		h("HackC", today.AddDays(5)),
		h("HackD", today.AddDays(-3)),
		h("HackE", hackathon.ParseDate("soon")),
	}

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X", 3)}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	_, jobs := tr.Detect(context.Background(), today)

	var reminders []Job
	for _, job := range jobs {
		if job.Task.Kind == notify.DeadlineReminder {
			reminders = append(reminders, job)
		}
	}

	require.Len(t, reminders, 1)
	assert.Equal(t, discord.GuildID(1), reminders[0].Config.GuildID)
	assert.Equal(t, "HackA", reminders[0].Task.Hackathon.Name)
	assert.Equal(t, 3, reminders[0].Task.Offset)
}

func TestDetectRemindersSkipRepeatedRows(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{
		h("HackA", today.AddDays(3)),
		h("HackA", today.AddDays(3)),
		h("HackB", today.AddDays(10)),
	}

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X", 3), guild(2, "X", 3)}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	report, jobs := tr.Detect(context.Background(), today)
	require.Len(t, report.Spreadsheets, 1)
	assert.Equal(t, 3, report.Spreadsheets[0].Rows)
	assert.Equal(t, 2, report.Spreadsheets[0].New)

	// One new-hackathon task per distinct row and guild.
	assert.Equal(t, 4, countKind(jobs, notify.NewHackathon))

	// One reminder per guild, not per repeated row.
	var guilds []discord.GuildID
	for _, job := range jobs {
		if job.Task.Kind == notify.DeadlineReminder {
			assert.Equal(t, "HackA", job.Task.Hackathon.Name)
			guilds = append(guilds, job.Config.GuildID)
		}
	}
	assert.Equal(t, []discord.GuildID{1, 2}, guilds)
}

func TestDetectCapturesConfigsAtStart(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	fetcher.started = make(chan struct{})
	fetcher.listings["X"] = []hackathon.Hackathon{h("HackA", today.AddDays(3))}

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X", 3)}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	type result struct {
		report *Report
		jobs   []Job
	}
	done := make(chan result)
	go func() {
		report, jobs := tr.Detect(context.Background(), today)
		done <- result{report, jobs}
	}()

	<-fetcher.started

	// Reconfigure the guild while the cycle is fetching. The source hands
	// out a fresh slice, as the real store does.
	changed := guild(1, "X", 7)
	changed.NotificationChannelID = 999
	configs.configs = []guildconfig.Config{changed, guild(2, "X", 3)}

	close(fetcher.block)
	res := <-done

	require.Len(t, res.report.Spreadsheets, 1)
	assert.Equal(t, []discord.GuildID{1}, res.report.Spreadsheets[0].GuildIDs)

	require.Len(t, res.jobs, 2)
	for _, job := range res.jobs {
		assert.Equal(t, discord.GuildID(1), job.Config.GuildID)
		assert.Equal(t, discord.ChannelID(10), job.Config.NotificationChannelID)
		assert.Equal(t, []int{3}, job.Config.ReminderDays)
	}
	assert.Equal(t, 1, countKind(res.jobs, notify.DeadlineReminder))
}

func TestDetectRemindersUseDefaults(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{h("HackA", today.AddDays(1))}

	configs := &fakeConfigs{
		configs:  []guildconfig.Config{guild(1, "X"), guild(2, "X", 7)},
		defaults: guildconfig.Defaults{ReminderDays: []int{7, 3, 1}},
	}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	_, jobs := tr.Detect(context.Background(), today)
	require.Equal(t, 1, countKind(jobs, notify.DeadlineReminder))

	for _, job := range jobs {
		if job.Task.Kind == notify.DeadlineReminder {
			assert.Equal(t, discord.GuildID(1), job.Config.GuildID)
			assert.Equal(t, 1, job.Task.Offset)
		}
	}
}

func TestRunRemindersFireOnce(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{h("HackA", today.AddDays(7))}

	now := today.Time().Add(9 * time.Hour)
	notifier := &fakeNotifier{}
	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X", 7, 3, 1)}}
	tr := New(configs, fetcher, notifier, NewMemoryLedger(), Opts{
		Now: func() time.Time { return now },
	})

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)

	sent := notifier.reset()
	require.Len(t, sent, 2)
	assert.Equal(t, notify.NewHackathon, sent[0].Task.Kind)
	assert.Equal(t, notify.DeadlineReminder, sent[1].Task.Kind)
	assert.Equal(t, 7, sent[1].Task.Offset)

	// Later on the same day.
	now = now.Add(30 * time.Minute)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifier.reset())

	// The next day the offset is 6, which is not configured.
	now = now.Add(24 * time.Hour)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifier.reset())

	// Four days later the 3-day reminder fires.
	now = now.Add(3 * 24 * time.Hour)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)
	sent = notifier.reset()
	require.Len(t, sent, 1)
	assert.Equal(t, 3, sent[0].Task.Offset)

	assert.NotNil(t, tr.LastReport())
}

func TestRunDeliveryFailureIsIsolated(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.listings["X"] = []hackathon.Hackathon{h("HackA", today.AddDays(3))}

	notifier := &fakeNotifier{fail: map[discord.GuildID]error{1: notify.ErrTargetGone}}
	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X", 3), guild(2, "X", 3)}}
	ledger := NewMemoryLedger()
	tr := New(configs, fetcher, notifier, ledger, Opts{
		Now: func() time.Time { return today.Time() },
	})

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Jobs)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.Sent)

	for _, d := range notifier.reset() {
		assert.Equal(t, discord.GuildID(2), d.GuildID)
	}

	// The failed reminder is not recorded, so it is retried on the next cycle.
	key := ReminderKey{GuildID: 1, Hackathon: fetcher.listings["X"][0].Key(), Offset: 3}
	sent, err := ledger.Sent(key)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestRunDoesNotOverlap(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	fetcher.started = make(chan struct{})

	configs := &fakeConfigs{configs: []guildconfig.Config{guild(1, "X")}}
	tr := New(configs, fetcher, &fakeNotifier{}, nil, Opts{})

	done := make(chan error)
	go func() {
		_, err := tr.Run(context.Background())
		done <- err
	}()

	// The first cycle is now stuck fetching.
	<-fetcher.started

	_, err := tr.Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(fetcher.block)
	assert.NoError(t, <-done)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule(DefaultSchedule))
	assert.NoError(t, ValidateSchedule("@every 5m"))
	assert.Error(t, ValidateSchedule("every now and then"))

	_, err := NewScheduler(context.Background(), "bad spec", time.UTC, New(&fakeConfigs{}, newFakeFetcher(), &fakeNotifier{}, nil, Opts{}))
	assert.Error(t, err)
}
