package hackathon

import (
	"fmt"
	"strings"
)

// Column indices of the tracking spreadsheet.
const (
	ColName = iota
	ColWebsite
	ColDateStart
	ColDateEnd
	ColDeadline
	ColStatus
	ColPlace
	ColRespondBy
	ColNotes

	NumColumns
)

// ParseRow parses a single spreadsheet row. Missing trailing cells are
// treated as absent. It returns false if the row has no name and should be
// skipped.
func ParseRow(row []any) (Hackathon, bool) {
	h := Hackathon{
		Name:      cell(row, ColName),
		Website:   cell(row, ColWebsite),
		DateStart: ParseDate(cell(row, ColDateStart)),
		DateEnd:   ParseDate(cell(row, ColDateEnd)),
		Deadline:  ParseDate(cell(row, ColDeadline)),
		Status:    cell(row, ColStatus),
		Place:     cell(row, ColPlace),
		RespondBy: ParseDate(cell(row, ColRespondBy)),
		Notes:     cell(row, ColNotes),
	}
	if h.Name == "" {
		return Hackathon{}, false
	}
	return h, true
}

// ParseRows parses all rows, skipping the ones without a name. Order is
// preserved.
func ParseRows(rows [][]any) []Hackathon {
	hackathons := make([]Hackathon, 0, len(rows))
	for _, row := range rows {
		if h, ok := ParseRow(row); ok {
			hackathons = append(hackathons, h)
		}
	}
	return hackathons
}

func cell(row []any, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}
