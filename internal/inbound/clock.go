package inbound

import (
	"errors"
	"strings"
	"time"
)

var ErrBadTime = errors.New("unrecognised time")

type Meridiem int

const (
	NoMeridiem Meridiem = iota
	AM
	PM
)

// ClockTime is a wall-clock time as typed by a user: "3pm", "9:30",
// "11:15 am", "18:00".
type ClockTime struct {
	Hour     int // as written: 1-12 with a meridiem, 0-23 without
	Minute   int
	Meridiem Meridiem
}

// ParseClock parses H[:MM][am|pm]. Without a meridiem the hour is read as
// 24-hour time.
func ParseClock(s string) (ClockTime, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var c ClockTime

	switch {
	case strings.HasSuffix(s, "am"):
		c.Meridiem = AM
		s = strings.TrimSpace(strings.TrimSuffix(s, "am"))
	case strings.HasSuffix(s, "pm"):
		c.Meridiem = PM
		s = strings.TrimSpace(strings.TrimSuffix(s, "pm"))
	}

	hourPart, minPart, hasMinutes := strings.Cut(s, ":")
	h, ok := number(hourPart, 1, 2)
	if !ok {
		return ClockTime{}, ErrBadTime
	}
	m := 0
	if hasMinutes {
		if m, ok = number(minPart, 2, 2); !ok {
			return ClockTime{}, ErrBadTime
		}
	}
	if m > 59 {
		return ClockTime{}, ErrBadTime
	}
	if c.Meridiem == NoMeridiem {
		if h > 23 {
			return ClockTime{}, ErrBadTime
		}
	} else if h < 1 || h > 12 {
		return ClockTime{}, ErrBadTime
	}

	c.Hour, c.Minute = h, m
	return c, nil
}

// ParseTrailingClock reads the time at the end of a phrase, so "today at
// 3pm" and "3 pm" both work. The last two words are tried before the last
// one.
func ParseTrailingClock(s string) (ClockTime, error) {
	fields := strings.Fields(s)
	if len(fields) >= 2 {
		if c, err := ParseClock(strings.Join(fields[len(fields)-2:], " ")); err == nil {
			return c, nil
		}
	}
	if len(fields) >= 1 {
		return ParseClock(fields[len(fields)-1])
	}
	return ClockTime{}, ErrBadTime
}

// number parses an unsigned decimal of minLen..maxLen ASCII digits.
func number(s string, minLen, maxLen int) (int, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

func (c ClockTime) Hour24() int {
	switch c.Meridiem {
	case AM:
		return c.Hour % 12
	case PM:
		return c.Hour%12 + 12
	}
	return c.Hour
}

// Next returns the first occurrence of c at or after now, in loc: today if
// that moment has not passed yet, otherwise tomorrow.
func (c ClockTime) Next(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	t := time.Date(n.Year(), n.Month(), n.Day(), c.Hour24(), c.Minute, 0, 0, loc)
	if t.Before(n) {
		t = time.Date(n.Year(), n.Month(), n.Day()+1, c.Hour24(), c.Minute, 0, 0, loc)
	}
	return t
}
