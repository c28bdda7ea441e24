package blackout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagepromote/internal/cfg"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)

	return ts
}

func TestAbsoluteWindow(t *testing.T) {
	s, err := FromCfg([]*cfg.BlackoutWindow{
		{Start: "2026-12-20T00:00:00Z", End: "2027-01-04T00:00:00Z"},
	})
	require.NoError(t, err)

	assert.Nil(t, s.Active(mustParse(t, "2026-12-19T23:59:59Z")))
	assert.NotNil(t, s.Active(mustParse(t, "2026-12-20T00:00:00Z")))
	assert.NotNil(t, s.Active(mustParse(t, "2026-12-31T12:00:00Z")))
	assert.Nil(t, s.Active(mustParse(t, "2027-01-04T00:00:00Z")))
}

func TestWeeklyWindow(t *testing.T) {
	s, err := FromCfg([]*cfg.BlackoutWindow{
		{Weekday: "Friday", From: "16:00", To: "20:00", Timezone: "Europe/Berlin"},
	})
	require.NoError(t, err)

	// 2026-10-16 is a friday, Berlin is UTC+2
	assert.Nil(t, s.Active(mustParse(t, "2026-10-16T13:59:00Z")))
	assert.NotNil(t, s.Active(mustParse(t, "2026-10-16T14:00:00Z")))
	assert.NotNil(t, s.Active(mustParse(t, "2026-10-16T17:59:00Z")))
	assert.Nil(t, s.Active(mustParse(t, "2026-10-16T18:00:00Z")))
	// thursday
	assert.Nil(t, s.Active(mustParse(t, "2026-10-15T15:00:00Z")))
}

func TestWeeklyWindowSpanningMidnight(t *testing.T) {
	s, err := FromCfg([]*cfg.BlackoutWindow{
		{Weekday: "saturday", From: "22:00", To: "06:00"},
	})
	require.NoError(t, err)

	// 2026-10-17 is a saturday
	assert.Nil(t, s.Active(mustParse(t, "2026-10-17T21:59:00Z")))
	assert.NotNil(t, s.Active(mustParse(t, "2026-10-17T23:00:00Z")))
	assert.NotNil(t, s.Active(mustParse(t, "2026-10-18T05:59:00Z")))
	assert.Nil(t, s.Active(mustParse(t, "2026-10-18T06:00:00Z")))
}

func TestWeeklyWindowOnDaylightSavingTimeChange(t *testing.T) {
	s, err := FromCfg([]*cfg.BlackoutWindow{
		{Weekday: "sunday", From: "10:00", To: "12:00", Timezone: "America/Los_Angeles"},
	})
	require.NoError(t, err)

	// 2026-03-08 is a sunday, clocks move from PST (UTC-8) to PDT (UTC-7) at 02:00
	assert.Nil(t, s.Active(mustParse(t, "2026-03-08T16:59:00Z")))    // 09:59 PDT
	assert.NotNil(t, s.Active(mustParse(t, "2026-03-08T17:30:00Z"))) // 10:30 PDT
	assert.NotNil(t, s.Active(mustParse(t, "2026-03-08T18:59:00Z"))) // 11:59 PDT
	assert.Nil(t, s.Active(mustParse(t, "2026-03-08T19:00:00Z")))    // 12:00 PDT

	// 2026-11-01 is a sunday, clocks move from PDT back to PST at 02:00
	assert.Nil(t, s.Active(mustParse(t, "2026-11-01T17:59:00Z")))    // 09:59 PST
	assert.NotNil(t, s.Active(mustParse(t, "2026-11-01T18:00:00Z"))) // 10:00 PST
	assert.Nil(t, s.Active(mustParse(t, "2026-11-01T20:00:00Z")))    // 12:00 PST
}

func TestNilScheduleIsNeverActive(t *testing.T) {
	var s *Schedule
	assert.Nil(t, s.Active(time.Now()))
	assert.Equal(t, "none", s.String())
}

func TestFromCfgRejectsInvalidWindows(t *testing.T) {
	testcases := map[string]*cfg.BlackoutWindow{
		"end before start": {Start: "2027-01-04T00:00:00Z", End: "2026-12-20T00:00:00Z"},
		"invalid start":    {Start: "yesterday", End: "2026-12-20T00:00:00Z"},
		"invalid weekday":  {Weekday: "caturday", From: "10:00", To: "11:00"},
		"invalid from":     {Weekday: "monday", From: "25:00", To: "11:00"},
		"empty window":     {Weekday: "monday", From: "10:00", To: "10:00"},
		"unknown timezone": {Weekday: "monday", From: "10:00", To: "11:00", Timezone: "Mars/Olympus"},
	}

	for name, w := range testcases {
		t.Run(name, func(t *testing.T) {
			_, err := FromCfg([]*cfg.BlackoutWindow{w})
			assert.Error(t, err)
		})
	}
}
