package guildconfig

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"libdb.so/persist"
	persistbadgerdb "libdb.so/persist/driver/badgerdb"
)

// Store holds every guild's Config. Writes are persisted before they
// return. Reads are served from memory.
type Store struct {
	configs  persist.Map[discord.GuildID, Config]
	defaults Defaults

	mu    sync.RWMutex
	cache map[discord.GuildID]Config
}

// Open opens the store under dir, creating it if needed, and loads every
// stored Config into memory.
func Open(dir string, defaults Defaults) (*Store, error) {
	configs, err := persist.NewMap[discord.GuildID, Config](
		persistbadgerdb.Open,
		filepath.Join(dir, "guild-configs-v1"),
	)
	if err != nil {
		return nil, fmt.Errorf("open guild configs: %w", err)
	}

	s := &Store{
		configs:  configs,
		defaults: defaults,
		cache:    make(map[discord.GuildID]Config),
	}

	for id, cfg := range configs.All() {
		s.cache[id] = cfg
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.configs.Close()
}

// Defaults returns the process-wide defaults the store was opened with.
func (s *Store) Defaults() Defaults {
	return s.defaults
}

// Get returns the guild's Config, or ErrNotConfigured.
func (s *Store) Get(guildID discord.GuildID) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.cache[guildID]
	if !ok {
		return Config{}, ErrNotConfigured
	}
	return cfg.clone(), nil
}

// All returns a copy of every guild's Config, ordered by guild ID.
func (s *Store) All() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.cache))
	all := make([]Config, 0, len(ids))
	for _, id := range ids {
		all = append(all, s.cache[id].clone())
	}
	return all
}

// Upsert applies update to the guild's Config, creating it if needed, and
// persists the result. Fields left untouched by update keep their previous
// values. Reminder days are normalized before saving.
func (s *Store) Upsert(guildID discord.GuildID, update func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cache[guildID].clone()
	update(&cfg)

	cfg.GuildID = guildID
	cfg.ReminderDays = NormalizeReminderDays(cfg.ReminderDays)
	cfg.UpdatedAt = time.Now()

	if len(cfg.ReminderDays) > MaxReminderDays {
		return Config{}, &ValidationError{
			Field:  "reminder_days",
			Reason: fmt.Sprintf("you can only set up to %d reminder days", MaxReminderDays),
		}
	}

	if err := s.configs.Store(guildID, cfg); err != nil {
		return Config{}, fmt.Errorf("store config: %w", err)
	}

	s.cache[guildID] = cfg
	return cfg.clone(), nil
}

// Delete removes the guild's Config. It returns ErrNotConfigured if there
// was nothing to delete.
func (s *Store) Delete(guildID discord.GuildID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[guildID]; !ok {
		return ErrNotConfigured
	}

	if err := s.configs.Delete(guildID); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}

	delete(s.cache, guildID)
	return nil
}

// ResolveSpreadsheetID returns the spreadsheet ID the guild should track:
// its own if set, else the default. A guild that has not run /setup can
// still resolve to the default.
func (s *Store) ResolveSpreadsheetID(guildID discord.GuildID) (string, error) {
	s.mu.RLock()
	cfg := s.cache[guildID]
	s.mu.RUnlock()

	return cfg.SpreadsheetIDOr(s.defaults)
}
