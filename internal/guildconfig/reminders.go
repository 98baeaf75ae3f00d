package guildconfig

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MaxReminderDays is the maximum number of reminder offsets a guild can
// configure.
const MaxReminderDays = 5

// NoReminders is the keyword accepted by ParseReminderDays to disable
// deadline reminders.
const NoReminders = "none"

// ValidationError is returned for user input that cannot be accepted. Its
// message is meant to be shown to the user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// ParseReminderDays parses a comma-separated list of positive integers such
// as "7,3,1". The result is sorted in descending order with duplicates
// removed. Any invalid token rejects the whole input.
func ParseReminderDays(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, NoReminders) {
		return []int{}, nil
	}

	if s == "" {
		return nil, &ValidationError{
			Field:  "reminder_days",
			Reason: fmt.Sprintf("use comma-separated numbers (e.g. '7,3,1'), or %q to disable reminders", NoReminders),
		}
	}

	parts := strings.Split(s, ",")
	if len(parts) > MaxReminderDays {
		return nil, &ValidationError{
			Field:  "reminder_days",
			Reason: fmt.Sprintf("you can only set up to %d reminder days", MaxReminderDays),
		}
	}

	days := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)

		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, &ValidationError{
				Field:  "reminder_days",
				Reason: fmt.Sprintf("%q is not a number; use comma-separated numbers (e.g. '7,3,1')", part),
			}
		}
		if n <= 0 {
			return nil, &ValidationError{
				Field:  "reminder_days",
				Reason: "all reminder days must be positive numbers",
			}
		}

		days = append(days, n)
	}

	return NormalizeReminderDays(days), nil
}

// NormalizeReminderDays returns a copy of days sorted in descending order
// with duplicates removed.
func NormalizeReminderDays(days []int) []int {
	if days == nil {
		return nil
	}
	days = slices.Clone(days)
	slices.Sort(days)
	days = slices.Compact(days)
	slices.Reverse(days)
	return days
}

// FormatReminderDays formats days as "7, 3, 1".
func FormatReminderDays(days []int) string {
	if len(days) == 0 {
		return NoReminders
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ", ")
}
