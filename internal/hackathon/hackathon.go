// Package hackathon describes a single hackathon listing as read from the
// tracking spreadsheet.
package hackathon

import (
	"strings"
	"time"
)

// Hackathon is one row of the tracking spreadsheet. Empty strings and zero
// Dates mean the cell was absent.
type Hackathon struct {
	Name      string
	Website   string
	DateStart Date
	DateEnd   Date
	Deadline  Date
	Status    string
	Place     string
	RespondBy Date
	Notes     string
}

// Key returns the identity used to decide whether a hackathon has been seen
// before. Two rows with the same name but different deadlines are different
// listings.
func (h Hackathon) Key() Key {
	return Key{
		Name:     strings.TrimSpace(h.Name),
		Deadline: h.Deadline.identity(),
	}
}

// Key identifies a hackathon across polling cycles.
type Key struct {
	Name     string
	Deadline string
}

// String formats the key as "name@deadline", or just the name if the
// hackathon has no deadline.
func (k Key) String() string {
	if k.Deadline == "" {
		return k.Name
	}
	return k.Name + "@" + k.Deadline
}

// Date is a calendar day with no time component. The zero Date is absent.
// Raw holds the original cell text, which is kept even if it could not be
// parsed.
type Date struct {
	Raw string

	year  int
	month time.Month
	day   int
}

// NewDate creates a parsed Date.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{
		Raw:   t.Format(isoLayout),
		year:  t.Year(),
		month: t.Month(),
		day:   t.Day(),
	}
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// dateLayouts are tried in order. The first is the format the tracking sheet
// has always used.
var dateLayouts = []string{
	"1/2/2006",
	isoLayout,
}

const isoLayout = "2006-01-02"

// ParseDate parses a spreadsheet cell into a Date. An empty cell yields the
// zero Date. A cell that matches none of the known layouts yields a Date
// that is not Valid but still carries Raw.
func ParseDate(cell string) Date {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return Date{}
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, cell)
		if err == nil {
			d := DateOf(t)
			d.Raw = cell
			return d
		}
	}

	return Date{Raw: cell}
}

// Valid returns true if the date was parsed into a calendar day.
func (d Date) Valid() bool { return d.year != 0 }

// IsZero returns true if the cell was absent entirely.
func (d Date) IsZero() bool { return !d.Valid() && d.Raw == "" }

// Time returns midnight UTC of the date. It returns the zero time if the
// date is not valid.
func (d Date) Time() time.Time {
	if !d.Valid() {
		return time.Time{}
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// DaysFrom returns the number of calendar days from other to d. The result
// is negative if d is before other. Both dates must be valid.
func (d Date) DaysFrom(other Date) int {
	return int(d.Time().Sub(other.Time()).Hours() / 24)
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Format formats a valid date using the given layout. An unparsed date
// returns its raw text.
func (d Date) Format(layout string) string {
	if !d.Valid() {
		return d.Raw
	}
	return d.Time().Format(layout)
}

// String returns the ISO form of a valid date, or the raw text otherwise.
func (d Date) String() string {
	return d.Format(isoLayout)
}

func (d Date) identity() string {
	if d.Valid() {
		return d.Time().Format(isoLayout)
	}
	return d.Raw
}
