package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers session questions for a symbol using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string) *TradingCalendar {
	// Suffix to MIC code mapping (ISO 10383); bare symbols default to NYSE.
	mic := "xnys"
	switch {
	case strings.HasSuffix(symbol, ".L"):
		mic = "xlon"
	case strings.HasSuffix(symbol, ".PA"):
		mic = "xpar"
	case strings.HasSuffix(symbol, ".DE"):
		mic = "xfra"
	case strings.HasSuffix(symbol, ".T"):
		mic = "xtks"
	case strings.HasSuffix(symbol, ".HK"):
		mic = "xhkg"
	case strings.HasSuffix(symbol, ".TO"):
		mic = "xtse"
	case strings.HasSuffix(symbol, ".AX"):
		mic = "xasx"
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using simple fallback (Mon-Fri 09:30-16:00 NY).", mic)
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		return (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16
	}

	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// SessionOpen returns the regular session open for the day containing t.
// The opening-range rule uses this to anchor its reference window.
func (tc *TradingCalendar) SessionOpen(t time.Time) time.Time {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	// 09:30 local is the regular open for every mapped venue's main session.
	year, month, day := t.Date()
	loc := tc.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, month, day, 9, 30, 0, 0, loc)
}

// -----------------------------------------------------------------------------
// CalendarSet maps symbols to their calendars once at startup.
// -----------------------------------------------------------------------------

type CalendarSet struct {
	calendars map[string]*TradingCalendar
}

// -----------------------------------------------------------------------------

func NewCalendarSet(symbols []string) *CalendarSet {
	cs := &CalendarSet{calendars: make(map[string]*TradingCalendar)}
	for _, symbol := range symbols {
		cs.calendars[symbol] = GetCalendar(symbol)
	}
	return cs
}

// -----------------------------------------------------------------------------

// For returns the calendar mapped to symbol, creating one on demand for
// symbols that appear after startup.
func (cs *CalendarSet) For(symbol string) *TradingCalendar {
	if cal, ok := cs.calendars[symbol]; ok {
		return cal
	}
	cal := GetCalendar(symbol)
	cs.calendars[symbol] = cal
	return cal
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked markets are currently open
func (cs *CalendarSet) AnyMarketOpen(now time.Time) bool {
	for _, cal := range cs.calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}
