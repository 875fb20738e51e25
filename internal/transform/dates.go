package transform

import (
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// DateLayout is the ISO-8601 calendar date format used for DateRecord.Date.
const DateLayout = "2006-01-02"

// WeekStart returns the Monday of the ISO week containing t, at midnight UTC.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -weekdayOffset(day.Weekday()))
}

// weekdayOffset counts days from Monday: Monday=0 ... Sunday=6.
func weekdayOffset(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// MapDates turns segmented weekdays into one DateRecord per weekday, dated
// relative to weekStart. All segments of a day land on a single record.
// A day with segments but no session label is named after its weekday.
func MapDates(days []models.DayPlan, weekStart time.Time) ([]models.DateRecord, error) {
	if weekStart.Weekday() != time.Monday {
		return nil, malformed(StageMapDates, weekStart.Format(DateLayout), "week start is not a Monday")
	}

	records := make([]models.DateRecord, 0, len(days))
	for _, day := range days {
		if day.Weekday < time.Sunday || day.Weekday > time.Saturday {
			return nil, malformed(StageMapDates, day.Weekday.String(), "unknown weekday")
		}

		record := models.DateRecord{
			Date:    weekStart.AddDate(0, 0, weekdayOffset(day.Weekday)).Format(DateLayout),
			Session: day.Segments[models.LabelSession],
		}
		if record.Session == "" {
			record.Session = models.RestDay
			if len(day.Segments) > 0 {
				record.Session = day.Weekday.String()
			}
		}
		for _, label := range models.OptionalLabels {
			if text, ok := day.Segments[label]; ok {
				record.SetSegment(label, &text)
			}
		}
		records = append(records, record)
	}
	return records, nil
}
