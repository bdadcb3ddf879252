package coerce

import (
	"errors"
	"strings"
	"time"

	"trino-ingest/internal/schema"
)

const dateLayout = "2006-01-02"

// Local date-times: yyyy-MM-dd HH:mm:ss with an optional fraction of any
// precision, which time.Parse accepts after the seconds field.
var localLayouts = []string{
	"2006-01-02 15:04:05",
}

// Zoned forms are the local layout followed by a numeric offset.
var zonedLayouts = []string{
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
}

var errUnparsableTimestamp = errors.New("unrecognized timestamp format")

// parseTimestamp converts the text of a DATE, TIME or TIMESTAMP value.
// TIME values are placed on today's local date. Values without an offset
// or zone are read as UTC.
func parseTimestamp(wt schema.WireType, text string, now func() time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if wt.IsTimeOfDay() {
		text = now().Format(dateLayout) + " " + text
	}

	if ts, err := time.ParseInLocation(dateLayout, text, time.UTC); err == nil {
		return ts, nil
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, nil
		}
	}
	if ts, ok := parseLocal(text, time.UTC); ok {
		return ts, nil
	}

	// "2024-03-01 12:00:00.000 America/New_York"
	if i := strings.LastIndexByte(text, ' '); i > 0 {
		zone := text[i+1:]
		if strings.ContainsAny(zone, "/") || zone == "UTC" || zone == "GMT" {
			if loc, err := time.LoadLocation(zone); err == nil {
				if ts, ok := parseLocal(text[:i], loc); ok {
					return ts, nil
				}
			}
		}
	}
	return time.Time{}, errUnparsableTimestamp
}

func parseLocal(text string, loc *time.Location) (time.Time, bool) {
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, text, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
