// Package timeparse turns the loose date and time text customers type into
// a canonical instant in the business's local timezone.
//
// Parsing failures are not fatal to callers: the raw text stays on the
// draft and only the derived instant is withheld.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Canonical layouts written back to drafts. Normalizing a pair in these
// layouts reproduces the same instant.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrUnparseable marks text that could not be resolved to a date or time.
var ErrUnparseable = errors.New("unparseable date or time")

// Instant is a normalized appointment start.
type Instant struct {
	UTC  time.Time
	Date string
	Time string
}

// Normalizer resolves text relative to a fixed location.
type Normalizer struct {
	Loc *time.Location
}

// New returns a Normalizer for loc, falling back to UTC when loc is nil.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{Loc: loc}
}

// Normalize combines dateText and timeText into an Instant. now anchors
// relative words ("tomorrow", "friday") and dates written without a year.
func (n *Normalizer) Normalize(dateText, timeText string, now time.Time) (Instant, error) {
	day, err := n.ParseDate(dateText, now)
	if err != nil {
		return Instant{}, err
	}
	hh, mm, err := ParseClock(timeText)
	if err != nil {
		return Instant{}, err
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, n.loc())
	return Instant{
		UTC:  local.UTC(),
		Date: local.Format(DateLayout),
		Time: local.Format(TimeLayout),
	}, nil
}

func (n *Normalizer) loc() *time.Location {
	if n == nil || n.Loc == nil {
		return time.UTC
	}
	return n.Loc
}

var (
	// Month and weekday names match case-insensitively.
	withYear = []string{
		"2006-01-02",
		"2006/01/02",
		"2/1/2006",
		"2-1-2006",
		"2.1.2006",
		"2 Jan 2006",
		"2 January 2006",
		"Jan 2 2006",
		"January 2 2006",
		"Monday 2 January 2006",
		"Mon 2 Jan 2006",
	}
	withoutYear = []string{
		"2/1",
		"2 Jan",
		"2 January",
		"Jan 2",
		"January 2",
		"Monday 2 January",
		"Mon 2 Jan",
	}

	ordinalRE = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	spaceRE   = regexp.MustCompile(`\s+`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseDate resolves dateText to midnight of a local calendar day.
func (n *Normalizer) ParseDate(dateText string, now time.Time) (time.Time, error) {
	loc := n.loc()
	s := cleanDate(dateText)
	if s == "" {
		return time.Time{}, errors.Wrap(ErrUnparseable, "date is empty")
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch s {
	case "today":
		return today, nil
	case "tomorrow", "tmrw", "tmr":
		return today.AddDate(0, 0, 1), nil
	case "day after tomorrow":
		return today.AddDate(0, 0, 2), nil
	}

	word := strings.TrimPrefix(s, "next ")
	word = strings.TrimPrefix(word, "this ")
	if wd, ok := weekdays[word]; ok {
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && strings.HasPrefix(s, "next ") {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), nil
	}

	for _, layout := range withYear {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range withoutYear {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		// No year given: take the next occurrence that is not in the past.
		d := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if d.Month() != t.Month() {
			// 29 Feb in a non-leap year.
			continue
		}
		if d.Before(today) {
			d = time.Date(today.Year()+1, t.Month(), t.Day(), 0, 0, 0, 0, loc)
		}
		return d, nil
	}
	return time.Time{}, errors.Wrapf(ErrUnparseable, "date %q", dateText)
}

func cleanDate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(",", " ", "of ", "").Replace(s)
	s = ordinalRE.ReplaceAllString(s, "$1")
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

var clockRE = regexp.MustCompile(`^(\d{1,2})(?:[:.h]?(\d{2}))?(am|pm)?$`)

// ParseClock resolves timeText to an hour and minute. Accepted shapes
// include "14:00", "14.00", "2pm", "2:30 pm", "1430" and "noon".
func ParseClock(timeText string) (hour, minute int, err error) {
	s := strings.ToLower(strings.TrimSpace(timeText))
	s = strings.NewReplacer(" ", "", "a.m.", "am", "p.m.", "pm", "hrs", "", "o'clock", "").Replace(s)
	switch s {
	case "":
		return 0, 0, errors.Wrap(ErrUnparseable, "time is empty")
	case "noon", "midday":
		return 12, 0, nil
	case "midnight":
		return 0, 0, nil
	}

	m := clockRE.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, errors.Wrapf(ErrUnparseable, "time %q", timeText)
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, errors.Wrapf(ErrUnparseable, "time %q", timeText)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, errors.Wrapf(ErrUnparseable, "time %q", timeText)
		}
		if hour != 12 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, errors.Wrapf(ErrUnparseable, "time %q", timeText)
	}
	return hour, minute, nil
}
