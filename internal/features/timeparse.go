package features

import (
	"strings"
	"time"

	"github.com/xela07ax/usagerisk/internal/domain"
)

// Форматы, в которых приходят start_time и usage_date от провайдера истории.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.DateOnly,
	"2006/01/02",
}

// eventTime предпочитает start_time; без него берет полночь usage_date.
func eventTime(ev domain.UsageEvent) (time.Time, bool) {
	if ts, ok := parseTime(ev.StartTime); ok {
		return ts, true
	}
	if ts, ok := parseTime(ev.UsageDate); ok {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location()), true
	}
	return time.Time{}, false
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "None" || raw == "null" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		// Наивные строки трактуем как настенное время в UTC.
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
