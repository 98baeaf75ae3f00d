package hackathon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		h, ok := ParseRow([]any{
			"HackA", "https://hacka.dev", "10/1/2026", "10/3/2026", "9/20/2026",
			"Applied", "Online", "9/25/2026", "bring snacks",
		})
		require.True(t, ok)
		assert.Equal(t, "HackA", h.Name)
		assert.Equal(t, "https://hacka.dev", h.Website)
		assert.Equal(t, NewDate(2026, time.October, 1), withoutRaw(h.DateStart))
		assert.Equal(t, NewDate(2026, time.September, 20), withoutRaw(h.Deadline))
		assert.Equal(t, "9/20/2026", h.Deadline.Raw)
		assert.Equal(t, "Online", h.Place)
		assert.Equal(t, "bring snacks", h.Notes)
	})

	t.Run("missing trailing cells", func(t *testing.T) {
		h, ok := ParseRow([]any{"HackB", ""})
		require.True(t, ok)
		assert.Equal(t, "HackB", h.Name)
		assert.Empty(t, h.Website)
		assert.True(t, h.Deadline.IsZero())
		assert.True(t, h.RespondBy.IsZero())
		assert.Empty(t, h.Notes)
	})

	t.Run("nil cell", func(t *testing.T) {
		h, ok := ParseRow([]any{"HackC", nil, nil, nil, nil, "Open"})
		require.True(t, ok)
		assert.Empty(t, h.Website)
		assert.Equal(t, "Open", h.Status)
	})

	t.Run("empty name skipped", func(t *testing.T) {
		_, ok := ParseRow([]any{"   ", "https://example.com"})
		assert.False(t, ok)

		_, ok = ParseRow(nil)
		assert.False(t, ok)
	})

	t.Run("unparseable date", func(t *testing.T) {
		h, ok := ParseRow([]any{"HackD", "", "", "", "sometime in fall"})
		require.True(t, ok)
		assert.False(t, h.Deadline.Valid())
		assert.False(t, h.Deadline.IsZero())
		assert.Equal(t, "sometime in fall", h.Deadline.Raw)
	})
}

func TestParseRows(t *testing.T) {
	rows := [][]any{
		{"First"},
		{},
		{"", "no name"},
		{"Second", "", "", "", "2026-10-17"},
	}

	hackathons := ParseRows(rows)
	require.Len(t, hackathons, 2)
	assert.Equal(t, "First", hackathons[0].Name)
	assert.Equal(t, "Second", hackathons[1].Name)
	assert.True(t, hackathons[1].Deadline.Valid())
}

func TestDate(t *testing.T) {
	today := NewDate(2026, time.October, 14)

	assert.Equal(t, 7, today.AddDays(7).DaysFrom(today))
	assert.Equal(t, -1, today.AddDays(-1).DaysFrom(today))
	assert.Equal(t, 0, today.DaysFrom(today))

	// Crossing a month boundary.
	assert.Equal(t, NewDate(2026, time.November, 2), today.AddDays(19))

	assert.Equal(t, "2026-10-14", today.String())
	assert.Equal(t, "October 14, 2026", today.Format("January 2, 2006"))

	loc := time.FixedZone("UTC+9", 9*60*60)
	late := time.Date(2026, time.October, 14, 23, 30, 0, 0, time.UTC).In(loc)
	assert.Equal(t, NewDate(2026, time.October, 15), DateOf(late))
}

func TestKey(t *testing.T) {
	a := Hackathon{Name: " HackA ", Deadline: ParseDate("10/17/2026")}
	b := Hackathon{Name: "HackA", Deadline: ParseDate("2026-10-17")}
	c := Hackathon{Name: "HackA", Deadline: ParseDate("10/24/2026")}
	d := Hackathon{Name: "HackA"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "HackA@2026-10-17", a.Key().String())
	assert.Equal(t, "HackA", d.Key().String())
}

func withoutRaw(d Date) Date {
	return NewDate(d.Time().Date())
}
