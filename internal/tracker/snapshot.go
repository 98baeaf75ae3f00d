package tracker

import (
	"slices"
	"sync"
	"time"

	"libdb.so/hackathon-bot/internal/hackathon"
)

// SnapshotState is the state of a spreadsheet's diff baseline.
type SnapshotState int

const (
	// NoBaseline means the spreadsheet has never been fetched successfully.
	// The next successful fetch reports every row as new.
	NoBaseline SnapshotState = iota
	// HasBaseline means the spreadsheet has a listing to diff against.
	HasBaseline
)

func (s SnapshotState) String() string {
	if s == HasBaseline {
		return "has_baseline"
	}
	return "no_baseline"
}

// Snapshot is the last successfully fetched listing of a spreadsheet.
type Snapshot struct {
	SpreadsheetID string
	State         SnapshotState
	Hackathons    []hackathon.Hackathon
	FetchedAt     time.Time
}

// Has returns true if a hackathon with the given key is in the snapshot.
func (s Snapshot) Has(key hackathon.Key) bool {
	return slices.ContainsFunc(s.Hackathons, func(h hackathon.Hackathon) bool {
		return h.Key() == key
	})
}

type snapshots struct {
	mu sync.RWMutex
	m  map[string]Snapshot
}

func newSnapshots() *snapshots {
	return &snapshots{m: make(map[string]Snapshot)}
}

// get returns the snapshot of the spreadsheet. A spreadsheet that was never
// fetched yields a NoBaseline snapshot.
func (s *snapshots) get(spreadsheetID string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.m[spreadsheetID]
	if !ok {
		return Snapshot{SpreadsheetID: spreadsheetID, State: NoBaseline}
	}
	snap.Hackathons = slices.Clone(snap.Hackathons)
	return snap
}

// replace stores current as the new baseline and returns the hackathons in
// current that were not in the previous baseline, in listing order. It
// returns every hackathon the first time it is called for a spreadsheet.
func (s *snapshots) replace(spreadsheetID string, current []hackathon.Hackathon, now time.Time) (added []hackathon.Hackathon, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.m[spreadsheetID]
	first = !ok || prev.State == NoBaseline

	seen := make(map[hackathon.Key]struct{}, len(prev.Hackathons))
	for _, h := range prev.Hackathons {
		seen[h.Key()] = struct{}{}
	}

	for _, h := range current {
		key := h.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		// Also dedupe rows repeated within the same listing.
		seen[key] = struct{}{}
		added = append(added, h)
	}

	s.m[spreadsheetID] = Snapshot{
		SpreadsheetID: spreadsheetID,
		State:         HasBaseline,
		Hackathons:    slices.Clone(current),
		FetchedAt:     now,
	}

	return added, first
}
