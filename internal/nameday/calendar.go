// Package nameday holds the Swedish name-day calendar and the lookups served
// by the API.
package nameday

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Validation errors for month/day lookups.
var (
	ErrInvalidMonth = errors.New("month must be between 1 and 12")
	ErrInvalidDay   = errors.New("day must be between 1 and 31")
	ErrInvalidDate  = errors.New("invalid date")
)

// validationYear is a leap year, so 02-29 is an accepted date.
const validationYear = 2000

// Calendar maps a "MM-DD" date key to the names celebrated on that day.
type Calendar map[string][]string

// NameMatch is one date on which a name is celebrated.
type NameMatch struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// DateKey formats a month and day as "MM-DD".
func DateKey(month, day int) string {
	return fmt.Sprintf("%02d-%02d", month, day)
}

// TodayKey returns the date key for t in its own location.
func TodayKey(t time.Time) string {
	return DateKey(int(t.Month()), t.Day())
}

// ValidateMonth rejects months outside 1-12.
func ValidateMonth(month int) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// ValidateDate rejects impossible month/day combinations.
func ValidateDate(month, day int) error {
	if err := ValidateMonth(month); err != nil {
		return err
	}
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	d := time.Date(validationYear, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return ErrInvalidDate
	}
	return nil
}

// Names returns the names for a date key; never nil.
func (c Calendar) Names(key string) []string {
	if names, ok := c[key]; ok && names != nil {
		return names
	}
	return []string{}
}

// FindName returns every date on which name is celebrated, matched
// case-insensitively, ordered by date. Each date appears at most once.
func (c Calendar) FindName(name string) []NameMatch {
	matches := []NameMatch{}
	for _, key := range c.Keys() {
		for _, n := range c[key] {
			if strings.EqualFold(n, name) {
				matches = append(matches, NameMatch{Date: key, Name: n})
				break
			}
		}
	}
	return matches
}

// Month returns the subset of the calendar for a month.
func (c Calendar) Month(month int) Calendar {
	prefix := fmt.Sprintf("%02d-", month)
	out := Calendar{}
	for key, names := range c {
		if strings.HasPrefix(key, prefix) {
			out[key] = names
		}
	}
	return out
}

// Keys returns the date keys in calendar order.
func (c Calendar) Keys() []string {
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// TotalDates is the number of date entries.
func (c Calendar) TotalDates() int { return len(c) }

// TotalNames is the number of names across all dates.
func (c Calendar) TotalNames() int {
	total := 0
	for _, names := range c {
		total += len(names)
	}
	return total
}
