// Package flags reads the feature flags that gate proactive messaging.
// Flags are administered elsewhere; this package only reads them. A missing
// or malformed flag reads as disabled.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	Global        = "proactive_assistant"
	DailyCheckin  = "daily_checkin"
	EveningWrapup = "evening_wrapup"
	TaskNag       = "task_nag"
)

type Flag struct {
	Enabled     bool `json:"enabled"`
	Hour        *int `json:"hour,omitempty"`
	IntervalMin *int `json:"interval_min,omitempty"`
}

// HourValue returns the configured local hour, if it is a valid one.
func (f Flag) HourValue() (int, bool) {
	if f.Hour == nil || *f.Hour < 0 || *f.Hour > 23 {
		return 0, false
	}
	return *f.Hour, true
}

// Interval returns interval_min as a duration, if it is positive.
func (f Flag) Interval() (time.Duration, bool) {
	if f.IntervalMin == nil || *f.IntervalMin <= 0 {
		return 0, false
	}
	return time.Duration(*f.IntervalMin) * time.Minute, true
}

// Parse decodes a stored flag value. Anything malformed is a disabled flag.
func Parse(raw []byte) Flag {
	var f Flag
	if len(raw) == 0 {
		return Flag{}
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return Flag{}
	}
	return f
}

type Source interface {
	// Lookup returns the flag for key. A missing key is a disabled flag, not
	// an error; errors mean the source itself is unavailable.
	Lookup(ctx context.Context, key string) (Flag, error)
}

// Set is a snapshot of flags taken at the start of a tick.
type Set map[string]Flag

func (s Set) Get(key string) Flag { return s[key] }

func (s Set) Lookup(_ context.Context, key string) (Flag, error) { return s[key], nil }

func Load(ctx context.Context, src Source, keys ...string) (Set, error) {
	out := make(Set, len(keys))
	for _, k := range keys {
		f, err := src.Lookup(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}
