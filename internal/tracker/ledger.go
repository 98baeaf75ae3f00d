package tracker

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"libdb.so/persist"
	persistbadgerdb "libdb.so/persist/driver/badgerdb"

	"libdb.so/hackathon-bot/internal/hackathon"
)

// ReminderKey identifies one deadline reminder of one guild.
type ReminderKey struct {
	GuildID   discord.GuildID
	Hackathon hackathon.Key
	Offset    int
}

func (k ReminderKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.GuildID, k.Offset, k.Hackathon)
}

// Ledger remembers which reminders were already delivered, so that a
// reminder fires once even though many cycles run on the same day.
type Ledger interface {
	Sent(ReminderKey) (bool, error)
	MarkSent(ReminderKey, time.Time) error
}

// PersistLedger is a Ledger stored on disk.
type PersistLedger struct {
	m persist.Map[string, time.Time]
}

var _ Ledger = (*PersistLedger)(nil)

// OpenLedger opens the reminder ledger under dir.
func OpenLedger(dir string) (*PersistLedger, error) {
	m, err := persist.NewMap[string, time.Time](
		persistbadgerdb.Open,
		filepath.Join(dir, "sent-reminders-v1"),
	)
	if err != nil {
		return nil, fmt.Errorf("open reminder ledger: %w", err)
	}
	return &PersistLedger{m: m}, nil
}

// Sent implements Ledger.
func (l *PersistLedger) Sent(key ReminderKey) (bool, error) {
	_, ok, err := l.m.Load(key.String())
	return ok, err
}

// MarkSent implements Ledger.
func (l *PersistLedger) MarkSent(key ReminderKey, at time.Time) error {
	return l.m.Store(key.String(), at)
}

// Close closes the underlying database.
func (l *PersistLedger) Close() error {
	return l.m.Close()
}

// MemoryLedger is a Ledger that only lives as long as the process.
type MemoryLedger struct {
	mu   sync.Mutex
	sent map[ReminderKey]time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{sent: make(map[ReminderKey]time.Time)}
}

// Sent implements Ledger.
func (l *MemoryLedger) Sent(key ReminderKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.sent[key]
	return ok, nil
}

// MarkSent implements Ledger.
func (l *MemoryLedger) MarkSent(key ReminderKey, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sent[key] = at
	return nil
}
