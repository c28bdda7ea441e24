// Package blackout decides if the current time is within a change freeze
// period during which no pull requests are promoted.
package blackout

import (
	"fmt"
	"strings"
	"time"

	"github.com/simplesurance/stagepromote/internal/cfg"
)

// Window is a period of time.
type Window interface {
	Contains(time.Time) bool
	String() string
}

// Schedule is a set of blackout windows.
// A nil or empty Schedule is never active.
type Schedule struct {
	windows []Window
}

func New(windows ...Window) *Schedule {
	return &Schedule{windows: windows}
}

// FromCfg creates a Schedule from the blackout windows of the configuration.
func FromCfg(windows []*cfg.BlackoutWindow) (*Schedule, error) {
	result := make([]Window, 0, len(windows))

	for i, w := range windows {
		var window Window
		var err error

		if w.Weekday != "" {
			window, err = weeklyFromCfg(w)
		} else {
			window, err = absoluteFromCfg(w)
		}
		if err != nil {
			return nil, fmt.Errorf("blackout window %d: %w", i, err)
		}

		result = append(result, window)
	}

	return New(result...), nil
}

// Active returns the first window that contains t.
// If t is not within any window, nil is returned.
func (s *Schedule) Active(t time.Time) Window {
	if s == nil {
		return nil
	}

	for _, w := range s.windows {
		if w.Contains(t) {
			return w
		}
	}

	return nil
}

func (s *Schedule) String() string {
	if s == nil || len(s.windows) == 0 {
		return "none"
	}

	strs := make([]string, 0, len(s.windows))
	for _, w := range s.windows {
		strs = append(strs, w.String())
	}

	return strings.Join(strs, ", ")
}

// AbsoluteWindow is the period [Start, End).
type AbsoluteWindow struct {
	Start time.Time
	End   time.Time
}

func absoluteFromCfg(w *cfg.BlackoutWindow) (*AbsoluteWindow, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return nil, fmt.Errorf("parsing start time failed: %w", err)
	}

	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		return nil, fmt.Errorf("parsing end time failed: %w", err)
	}

	if !end.After(start) {
		return nil, fmt.Errorf("end time %s is not after start time %s", w.End, w.Start)
	}

	return &AbsoluteWindow{Start: start, End: end}, nil
}

func (w *AbsoluteWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w *AbsoluteWindow) String() string {
	return fmt.Sprintf("%s - %s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// WeeklyWindow recurs every week on Weekday between From and To.
// From and To are offsets from midnight in Location. When To is before
// From, the window spans midnight and ends on the following day.
type WeeklyWindow struct {
	Weekday  time.Weekday
	From     time.Duration
	To       time.Duration
	Location *time.Location
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func weeklyFromCfg(w *cfg.BlackoutWindow) (*WeeklyWindow, error) {
	weekday, exists := weekdays[strings.ToLower(w.Weekday)]
	if !exists {
		return nil, fmt.Errorf("invalid weekday: %q", w.Weekday)
	}

	from, err := parseTimeOfDay(w.From)
	if err != nil {
		return nil, fmt.Errorf("parsing from time failed: %w", err)
	}

	to, err := parseTimeOfDay(w.To)
	if err != nil {
		return nil, fmt.Errorf("parsing to time failed: %w", err)
	}

	if from == to {
		return nil, fmt.Errorf("from and to time are equal (%s)", w.From)
	}

	loc := time.UTC
	if w.Timezone != "" {
		loc, err = time.LoadLocation(w.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone failed: %w", err)
		}
	}

	return &WeeklyWindow{
		Weekday:  weekday,
		From:     from,
		To:       to,
		Location: loc,
	}, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}

	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (w *WeeklyWindow) Contains(t time.Time) bool {
	t = t.In(w.Location)

	// wall clock time, t.Sub(midnight) differs on daylight saving time changes
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if w.From < w.To {
		return t.Weekday() == w.Weekday && offset >= w.From && offset < w.To
	}

	// spans midnight
	if t.Weekday() == w.Weekday && offset >= w.From {
		return true
	}

	return t.Weekday() == (w.Weekday+1)%7 && offset < w.To
}

func (w *WeeklyWindow) String() string {
	return fmt.Sprintf("every %s %s - %s (%s)", w.Weekday, fmtOffset(w.From), fmtOffset(w.To), w.Location)
}

func fmtOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
